package dispatch

import "strings"

// longestSafeFlush returns how much of buf may be flushed as plain output
// without risking splitting a sentinel across chunk boundaries: the
// longest suffix of buf that is itself a prefix of sentinel is held back,
// since the next chunk could complete it into a real match.
func longestSafeFlush(buf, sentinel string) int {
	maxK := len(sentinel) - 1
	if maxK > len(buf) {
		maxK = len(buf)
	}
	for k := maxK; k > 0; k-- {
		if strings.HasSuffix(buf, sentinel[:k]) {
			return len(buf) - k
		}
	}
	return len(buf)
}
