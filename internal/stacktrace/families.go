package stacktrace

import (
	"regexp"
	"strings"
)

// Family names a stack-shape family
type Family string

const (
	FamilyStructured Family = "structured"
	FamilySafari     Family = "safari"
	FamilyIE         Family = "ie"
	FamilyOpera9     Family = "opera9"
	FamilyOpera10a   Family = "opera10a"
	FamilyOpera10b   Family = "opera10b"
	FamilyOpera11    Family = "opera11"
	FamilyFirefox    Family = "firefox"
	FamilyOther      Family = "other"
)

// Anonymous is the placeholder name for unnamed functions
const Anonymous = "{anonymous}"

var (
	reStructuredHeader = regexp.MustCompile(`(?m)^\S[^(]+?[\n$]`)
	reStructuredAt     = regexp.MustCompile(`(?m)^\s+(at eval )?at\s+`)
	reStructuredAnon   = regexp.MustCompile(`(?m)^([^(]+?)([\n$])`)
	reStructuredObject = regexp.MustCompile(`(?m)^Object.<anonymous>\s*\(([^)]+)\)`)
	reStructuredNamed  = regexp.MustCompile(`^(\S.*?) \((.+)\)$`)
	reProgramCounter   = regexp.MustCompile(`(?m)\(\d+\)(\)?)$`)

	reNativeCode   = regexp.MustCompile(`\[native code\]\n`)
	reErrorHeader  = regexp.MustCompile(`(?m)^\w+Error:.*\n`)
	reLeadingAt    = regexp.MustCompile(`(?m)^@`)
	reIEAnonymous  = regexp.MustCompile(`at Anonymous function `)
	reIELine       = regexp.MustCompile(`(?m)^.*at (\w+) \(([^)]+)\)$`)
	reFirefoxTail  = regexp.MustCompile(`(?:\n@:0)?\s+$`)
	reFirefoxAnon  = regexp.MustCompile(`(?m)^[(@]`)
	reBareNamed    = regexp.MustCompile(`^([^@()\s]+)@(.+)$`)
	reOpera11Line  = regexp.MustCompile(`^.*line (\d+), column (\d+)(?: in (.+))? in (\S+):$`)
	reOpera11Anon  = regexp.MustCompile(`<anonymous function: (\S+)>`)
	reOpera11Plain = regexp.MustCompile(`<anonymous function>`)
	reOpera10bLine = regexp.MustCompile(`^(.*)@(.+):(\d+)$`)
	reOpera10aLine = regexp.MustCompile(`(?i)Line (\d+).*script (?:in )?(\S+)(?:: In function (\S+))?$`)
	reOpera9Line   = regexp.MustCompile(`(?i)Line (\d+).*script (?:in )?(\S+)`)
	reFunctionName = regexp.MustCompile(`(?i)function\s*([\w\-$]+)?\s*\(`)
)

type formatter func(e *ErrorValue) []string

var formatters = map[Family]formatter{
	FamilyStructured: formatStructured,
	FamilySafari:     formatSafari,
	FamilyIE:         formatIE,
	FamilyFirefox:    formatFirefox,
	FamilyOpera11:    formatOpera11,
	FamilyOpera10b:   formatOpera10b,
	FamilyOpera10a:   formatOpera10a,
	FamilyOpera9:     formatOpera9,
}

// formatStructured handles V8-shaped stacks ("    at fn (file:line:col)").
// goja appends the program counter to every location, which is dropped.
func formatStructured(e *ErrorValue) []string {
	stack := reProgramCounter.ReplaceAllString(e.Stack, "$1") + "\n"
	stack = reStructuredHeader.ReplaceAllString(stack, "")
	stack = reStructuredAt.ReplaceAllString(stack, "")
	stack = reStructuredAnon.ReplaceAllString(stack, Anonymous+"()@$1$2")
	stack = reStructuredObject.ReplaceAllString(stack, Anonymous+"()@$1")

	lines := strings.Split(stack, "\n")
	lines = lines[:len(lines)-1]
	for i, line := range lines {
		if strings.HasPrefix(line, Anonymous+"()@") {
			continue
		}
		lines[i] = reStructuredNamed.ReplaceAllString(line, "$1()@$2")
	}
	return lines
}

func formatSafari(e *ErrorValue) []string {
	stack := replaceFirst(reNativeCode, e.Stack, "")
	stack = replaceFirst(reErrorHeader, stack, "")
	stack = reLeadingAt.ReplaceAllString(stack, Anonymous+"()@")
	return nameBareFrames(strings.Split(stack, "\n"))
}

func formatIE(e *ErrorValue) []string {
	stack := reIEAnonymous.ReplaceAllString(e.Stack, Anonymous+"()@")
	stack = replaceFirst(reErrorHeader, stack, "")
	stack = reIELine.ReplaceAllString(stack, "$1()@$2")
	return strings.Split(stack, "\n")
}

func formatFirefox(e *ErrorValue) []string {
	stack := replaceFirst(reFirefoxTail, e.Stack, "")
	stack = reFirefoxAnon.ReplaceAllString(stack, Anonymous+"()@")
	return nameBareFrames(strings.Split(stack, "\n"))
}

func formatOpera11(e *ErrorValue) []string {
	lines := strings.Split(e.Stacktrace, "\n")
	var result []string
	for i := 0; i < len(lines); i += 2 {
		m := reOpera11Line.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		location := m[4] + ":" + m[1] + ":" + m[2]
		fn := m[3]
		if fn == "" {
			fn = "global code"
		}
		fn = reOpera11Anon.ReplaceAllString(fn, "$1")
		fn = reOpera11Plain.ReplaceAllString(fn, Anonymous)
		if !strings.HasSuffix(fn, ")") {
			fn += "()"
		}
		result = append(result, fn+"@"+location+" -- "+sourceLine(lines, i+1))
	}
	return result
}

func formatOpera10b(e *ErrorValue) []string {
	var result []string
	for _, line := range strings.Split(e.Stacktrace, "\n") {
		m := reOpera10bLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fn := "global code"
		if m[1] != "" {
			fn = m[1] + "()"
		}
		result = append(result, fn+"@"+m[2]+":"+m[3])
	}
	return result
}

func formatOpera10a(e *ErrorValue) []string {
	lines := strings.Split(e.Stacktrace, "\n")
	var result []string
	for i := 0; i < len(lines); i += 2 {
		m := reOpera10aLine.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		fn := m[3]
		if fn == "" {
			fn = Anonymous
		}
		result = append(result, fn+"()@"+m[2]+":"+m[1]+" -- "+sourceLine(lines, i+1))
	}
	return result
}

func formatOpera9(e *ErrorValue) []string {
	lines := strings.Split(e.Message, "\n")
	var result []string
	for i := 2; i < len(lines); i += 2 {
		m := reOpera9Line.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		result = append(result, Anonymous+"()@"+m[2]+":"+m[1]+" -- "+sourceLine(lines, i+1))
	}
	return result
}

// walkCallers is the generic fallback: it renders each CallSite as
// "name(args)" and stops after maxDepth links.
func walkCallers(start *CallSite, maxDepth int) []string {
	stack := []string{}
	for cur := start; cur != nil && len(stack) < maxDepth; cur = cur.Caller {
		fn := Anonymous
		if m := reFunctionName.FindStringSubmatch(cur.Source); m != nil && m[1] != "" {
			fn = m[1]
		}
		stack = append(stack, fn+"("+StringifyArguments(cur.Arguments)+")")
	}
	return stack
}

// nameBareFrames rewrites "fn@loc" as "fn()@loc".
func nameBareFrames(lines []string) []string {
	for i, line := range lines {
		lines[i] = reBareNamed.ReplaceAllString(line, "$1()@$2")
	}
	return lines
}

func sourceLine(lines []string, i int) string {
	if i >= len(lines) {
		return ""
	}
	return strings.TrimLeft(lines[i], " \t")
}

func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}
