package tle

// SplitLines splits a response body into lines. "\n", "\r\n" and a lone "\r"
// all terminate a line; interior blank lines are kept so the stride-of-3
// grouping sees the body exactly as served. A final terminator does not
// produce a trailing empty line.
func SplitLines(body []byte) []string {
	var lines []string
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\n':
			lines = append(lines, string(body[start:i]))
			start = i + 1
		case '\r':
			lines = append(lines, string(body[start:i]))
			if i+1 < len(body) && body[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(body) {
		lines = append(lines, string(body[start:]))
	}
	return lines
}
