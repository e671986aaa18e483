package xref

// ScanForObjects rebuilds a table by locating "N G obj" headers in the raw
// bytes. Later definitions win, matching how a reader that trusts file order
// would see an incrementally updated document. It returns the offsets just
// past each "trailer" keyword so the caller can recover a trailer dictionary.
func ScanForObjects(data []byte, into *Table) []int64 {
	var trailers []int64
	for i := 0; i+3 <= len(data); i++ {
		if data[i] != 'o' || data[i+1] != 'b' || data[i+2] != 'j' {
			if data[i] == 't' && matchWord(data, i, "trailer") {
				trailers = append(trailers, int64(i+len("trailer")))
				i += len("trailer") - 1
			}
			continue
		}
		// Word boundary on both sides, so "endobj" does not match.
		if i+3 < len(data) && !isWS(data[i+3]) && !isDelim(data[i+3]) {
			continue
		}
		j := i - 1
		gen, genStart, ok := intBefore(data, j)
		if !ok {
			continue
		}
		num, numStart, ok := intBefore(data, genStart-1)
		if !ok {
			continue
		}
		into.Overwrite(num, Entry{Type: FileEntry, Offset: int64(numStart), Gen: gen})
		i += 2
	}
	return trailers
}

func matchWord(data []byte, i int, word string) bool {
	if i+len(word) > len(data) {
		return false
	}
	if string(data[i:i+len(word)]) != word {
		return false
	}
	if i > 0 && !isWS(data[i-1]) && !isDelim(data[i-1]) {
		return false
	}
	end := i + len(word)
	return end == len(data) || isWS(data[end]) || isDelim(data[end])
}

// intBefore reads a decimal integer ending at or before position j, skipping
// trailing whitespace. It reports the value and the index of its first digit.
func intBefore(data []byte, j int) (int, int, bool) {
	for j >= 0 && isWS(data[j]) {
		j--
	}
	end := j
	for j >= 0 && data[j] >= '0' && data[j] <= '9' {
		j--
	}
	if j == end {
		return 0, 0, false
	}
	start := j + 1
	if end-start >= 10 {
		return 0, 0, false
	}
	v := 0
	for k := start; k <= end; k++ {
		v = v*10 + int(data[k]-'0')
	}
	return v, start, true
}

func isDelim(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
