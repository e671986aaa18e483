package raw

// Convenience accessors used across the parser, fonts, and extractor.
// They all tolerate nil inputs so lookup chains stay flat.

// DictGet fetches a key from a dictionary, returning nil when absent.
func DictGet(d Dictionary, key string) Object {
	if d == nil {
		return nil
	}
	if v, ok := d.Get(NameObj{Val: key}); ok {
		return v
	}
	return nil
}

// IntFromDict returns an integer value, or def when missing or non-numeric.
func IntFromDict(d Dictionary, key string, def int64) int64 {
	if n, ok := DictGet(d, key).(NumberObj); ok {
		return n.Int()
	}
	return def
}

// FloatValue unwraps any Number into a float64.
func FloatValue(o Object) (float64, bool) {
	if n, ok := o.(NumberObj); ok {
		return n.Float(), true
	}
	return 0, false
}

// NameValue unwraps a Name into its string, or "" for anything else.
func NameValue(o Object) string {
	if n, ok := o.(NameObj); ok {
		return n.Val
	}
	return ""
}

// StringValue unwraps a String into its bytes.
func StringValue(o Object) ([]byte, bool) {
	if s, ok := o.(StringObj); ok {
		return s.Bytes, true
	}
	return nil, false
}
