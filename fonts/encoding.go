package fonts

import "golang.org/x/text/encoding/charmap"

// baseEncoding returns the code-to-rune table for a named base encoding.
// WinAnsi and MacRoman are stock charmaps; StandardEncoding is built from its
// glyph name layout.
func baseEncoding(name string) *[256]rune {
	switch name {
	case "WinAnsiEncoding":
		return charmapTable(charmap.Windows1252)
	case "MacRomanEncoding":
		return charmapTable(charmap.Macintosh)
	case "MacExpertEncoding":
		// Expert sets carry small caps and fractions; mapping them to
		// their plain equivalents loses style, not content.
		return standardTable()
	default:
		return standardTable()
	}
}

func charmapTable(cm *charmap.Charmap) *[256]rune {
	var t [256]rune
	for i := 0; i < 256; i++ {
		r := cm.DecodeByte(byte(i))
		if r == '�' && i != 0 {
			r = 0
		}
		t[i] = r
	}
	return &t
}

var standardCache *[256]rune

func standardTable() *[256]rune {
	if standardCache != nil {
		return standardCache
	}
	var t [256]rune
	for code, name := range standardEncodingNames {
		if name == "" {
			continue
		}
		t[code] = glyphToRune(name)
	}
	standardCache = &t
	return &t
}

// standardEncodingNames is the Adobe StandardEncoding layout, Appendix D.
var standardEncodingNames = map[int]string{
	0o40: "space", 0o41: "exclam", 0o42: "quotedbl", 0o43: "numbersign",
	0o44: "dollar", 0o45: "percent", 0o46: "ampersand", 0o47: "quoteright",
	0o50: "parenleft", 0o51: "parenright", 0o52: "asterisk", 0o53: "plus",
	0o54: "comma", 0o55: "hyphen", 0o56: "period", 0o57: "slash",
	0o60: "zero", 0o61: "one", 0o62: "two", 0o63: "three",
	0o64: "four", 0o65: "five", 0o66: "six", 0o67: "seven",
	0o70: "eight", 0o71: "nine", 0o72: "colon", 0o73: "semicolon",
	0o74: "less", 0o75: "equal", 0o76: "greater", 0o77: "question",
	0o100: "at", 0o101: "A", 0o102: "B", 0o103: "C", 0o104: "D",
	0o105: "E", 0o106: "F", 0o107: "G", 0o110: "H", 0o111: "I",
	0o112: "J", 0o113: "K", 0o114: "L", 0o115: "M", 0o116: "N",
	0o117: "O", 0o120: "P", 0o121: "Q", 0o122: "R", 0o123: "S",
	0o124: "T", 0o125: "U", 0o126: "V", 0o127: "W", 0o130: "X",
	0o131: "Y", 0o132: "Z", 0o133: "bracketleft", 0o134: "backslash",
	0o135: "bracketright", 0o136: "asciicircum", 0o137: "underscore",
	0o140: "quoteleft", 0o141: "a", 0o142: "b", 0o143: "c", 0o144: "d",
	0o145: "e", 0o146: "f", 0o147: "g", 0o150: "h", 0o151: "i",
	0o152: "j", 0o153: "k", 0o154: "l", 0o155: "m", 0o156: "n",
	0o157: "o", 0o160: "p", 0o161: "q", 0o162: "r", 0o163: "s",
	0o164: "t", 0o165: "u", 0o166: "v", 0o167: "w", 0o170: "x",
	0o171: "y", 0o172: "z", 0o173: "braceleft", 0o174: "bar",
	0o175: "braceright", 0o176: "asciitilde",
	0o241: "exclamdown", 0o242: "cent", 0o243: "sterling", 0o244: "fraction",
	0o245: "yen", 0o246: "florin", 0o247: "section", 0o250: "currency",
	0o251: "quotesingle", 0o252: "quotedblleft", 0o253: "guillemotleft",
	0o254: "guilsinglleft", 0o255: "guilsinglright", 0o256: "fi", 0o257: "fl",
	0o261: "endash", 0o262: "dagger", 0o263: "daggerdbl", 0o264: "periodcentered",
	0o266: "paragraph", 0o267: "bullet", 0o270: "quotesinglbase",
	0o271: "quotedblbase", 0o272: "quotedblright", 0o273: "guillemotright",
	0o274: "ellipsis", 0o275: "perthousand", 0o277: "questiondown",
	0o301: "grave", 0o302: "acute", 0o303: "circumflex", 0o304: "tilde",
	0o305: "macron", 0o306: "breve", 0o307: "dotaccent", 0o310: "dieresis",
	0o312: "ring", 0o313: "cedilla", 0o315: "hungarumlaut", 0o316: "ogonek",
	0o317: "caron", 0o320: "emdash",
	0o341: "AE", 0o343: "ordfeminine", 0o350: "Lslash", 0o351: "Oslash",
	0o352: "OE", 0o353: "ordmasculine", 0o361: "ae", 0o365: "dotlessi",
	0o370: "lslash", 0o371: "oslash", 0o372: "oe", 0o373: "germandbls",
}
