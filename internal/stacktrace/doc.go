/*
Package stacktrace extracts and normalizes stack traces from error-like values.

Engines disagree on how a stack looks. The Normalizer probes an ErrorValue for
the fields that tell the engines apart and picks one of a closed set of
families:

 1. structured: argument list plus stack text (V8, goja, Go captures)
 2. safari:     stack text plus source URL
 3. ie:         stack text plus numeric error code
 4. opera9/10a/10b/11: legacy Opera, selected by the Opera environment flag
 5. firefox:    stack text alone
 6. other:      walks the CallSite chain, at most MaxDepth frames

Every family returns frames shaped like "{function}()@{location}", with
"{anonymous}" standing in for unnamed functions. Get never panics; an error
class outside the allow-list that carries no stack yields a single diagnostic
string instead of frames.
*/
package stacktrace
