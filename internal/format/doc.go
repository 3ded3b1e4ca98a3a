// Package format implements printf-style substitution for console messages.
//
// A format string is split on '%' into literal and specifier tokens. The
// recognised directives are:
//
//	%s   string (non-strings render as "")
//	%d   integer (floor of a number, "NaN" otherwise)
//	%i   same as %d
//	%f   number pass-through ("NaN" for non-numbers)
//	%c   style: wraps the following token in <span style='...'>
//	%%   literal percent sign
//
// A positional index ("%2$s") overrides the implicit left-to-right counter and
// an optional precision (".3") may follow it. Unknown directive letters are
// copied to the output verbatim and do not consume a substitution. A
// directive whose substitution is missing is also copied verbatim.
//
// Format returns the formatted text together with the substitutions that were
// never referenced, so a renderer can show them as extra values:
//
//	res := format.Format("%s is %d", []any{"x", 3.7})
//	// res.Formatted == "x is 3", len(res.Unused) == 0
package format
