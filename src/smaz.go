package chatfx

/*------------------------------------------------------------------
 *
 * Purpose:   	Smaz compression of short text messages.
 *
 * Description:	Smaz replaces common English fragments with a single byte
 *		taken from a fixed 254 entry codebook.  Anything not in the
 *		codebook is sent verbatim:
 *
 *			254 b		- one verbatim byte.
 *			255 n b...	- n+1 verbatim bytes, up to 256.
 *
 *		Compression is a greedy longest match, up to 7 characters,
 *		which is the longest codebook entry.
 *
 *		This is the same codebook as the original C library by
 *		Salvatore Sanfilippo so messages interoperate with other
 *		smaz based chat clients.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
)

const SMAZ_VERBATIM_1 = 254
const SMAZ_VERBATIM_N = 255
const SMAZ_MAX_VERBATIM = 256
const SMAZ_MAX_ENTRY_LEN = 7

var ErrSmazTruncated = errors.New("smaz: truncated verbatim sequence")

var smaz_codebook = [254]string{
	" ", "the", "e", "t", "a", "of", "o", "and", "i", "n", "s", "e ", "r",
	" th", " t", "in", "he", "th", "h", "he ", "to", "\r\n", "l", "s ", "d",
	" a", "an", "er", "c", " o", "d ", "on", " of", "re", "of ", "t ", ", ",
	"is", "u", "at", "   ", "n ", "or", "which", "f", "m", "as", "it", "that",
	"\n", "was", "en", "  ", " w", "es", " an", " i", "\r", "f ", "g", "p",
	"nd", " s", "nd ", "ed ", "w", "ed", "http://", "for", "te", "ing", "y ",
	"The", " c", "ti", "r ", "his", "st", " in", "ar", "nt", ",", " to", "y",
	"ng", " h", "with", "le", "al", "to ", "b", "ou", "be", "were", " b", "se",
	"o ", "ent", "ha", "ng ", "their", "\"", "hi", "from", " f", "in ", "de",
	"ion", "me", "v", ".", "ve", "all", "re ", "ri", "ro", "is ", "co", "f t",
	"are", "ea", ". ", "her", " m", "er ", " p", "es ", "by", "they", "di",
	"ra", "ic", "not", "s, ", "d t", "at ", "ce", "la", "h ", "ne", "as ",
	"tio", "on ", "n t", "io", "we", " a ", "om", ", a", "s o", "ur", "li",
	"ll", "ch", "had", "this", "e t", "g ", "e\r\n", " wh", "ere", " co", "e o",
	"a ", "us", " d", "ss", "\n\r\n", "\r\n\r", "=\"", " be", " e", "s a", "ma",
	"one", "t t", "or ", "but", "el", "so", "l ", "e s", "s,", "no", "ter",
	" wa", "iv", "ho", "e a", " r", "hat", "s t", "ns", "ch ", "wh", "tr", "ut",
	"/", "have", "ly ", "ta", " ha", " on", "tha", "-", " l", "ati", "en ",
	"pe", " re", "there", "ass", "si", " fo", "wa", "ec", "our", "who", "its",
	"z", "fo", "rs", ">", "ot", "un", "<", "im", "th ", "nc", "ate", "><",
	"ver", "ad", " we", "ly", "ee", " n", "id", " cl", "ac", "il", "</", "rt",
	" wi", "div", "e, ", " it", "whi", " ma", "ge", "x", "e c", "men", ".com",
}

var smaz_lookup = func() map[string]byte {
	var m = make(map[string]byte, len(smaz_codebook))
	for i, s := range smaz_codebook {
		m[s] = byte(i)
	}
	return m
}()

func smaz_compress(in []byte) []byte {
	var out = make([]byte, 0, len(in))
	var verb = make([]byte, 0, SMAZ_MAX_VERBATIM)

	var flush = func() {
		switch len(verb) {
		case 0:
		case 1:
			out = append(out, SMAZ_VERBATIM_1, verb[0])
		default:
			out = append(out, SMAZ_VERBATIM_N, byte(len(verb)-1))
			out = append(out, verb...)
		}
		verb = verb[:0]
	}

	for i := 0; i < len(in); {
		var matched = 0
		for l := min(SMAZ_MAX_ENTRY_LEN, len(in)-i); l > 0; l-- {
			if code, ok := smaz_lookup[string(in[i:i+l])]; ok {
				flush()
				out = append(out, code)
				matched = l
				break
			}
		}

		if matched > 0 {
			i += matched
			continue
		}

		verb = append(verb, in[i])
		i++
		if len(verb) == SMAZ_MAX_VERBATIM {
			flush()
		}
	}
	flush()

	return out
}

func smaz_decompress(in []byte) ([]byte, error) {
	var out = make([]byte, 0, len(in)*3)

	for i := 0; i < len(in); {
		switch in[i] {
		case SMAZ_VERBATIM_1:
			if i+1 >= len(in) {
				return nil, ErrSmazTruncated
			}
			out = append(out, in[i+1])
			i += 2
		case SMAZ_VERBATIM_N:
			if i+1 >= len(in) {
				return nil, ErrSmazTruncated
			}
			var n = int(in[i+1]) + 1
			if i+2+n > len(in) {
				return nil, ErrSmazTruncated
			}
			out = append(out, in[i+2:i+2+n]...)
			i += 2 + n
		default:
			out = append(out, smaz_codebook[in[i]]...)
			i++
		}
	}

	return out, nil
}

/* end smaz.go */
