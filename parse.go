package rastercodec

import (
	"strings"

	"github.com/mrjoshuak/go-rastercodec/internal/fault"
)

// headerWriter stamps a container's fixed header bytes into the finished
// destination buffer.
type headerWriter func(f *Format, dst *Reference)

var (
	containerTags  = []string{"DIB", "BMP", "PNG", "JPG", "ANYF"}
	formatSettings = []string{"PAD", "SAME", "REP", "ALPHA"}
)

// matchWord consumes the first word of words that prefixes s at *i.
func matchWord(s string, i *int, words []string) int {
	for wi, w := range words {
		if strings.HasPrefix(s[*i:], w) {
			*i += len(w)
			return wi
		}
	}
	fault.Checkf(false, "unknown format token at %q", s[*i:])
	return -1
}

// parseNumber consumes a decimal run at *i; an empty run yields 0.
func parseNumber(s string, i *int) uint64 {
	var result uint64
	for *i < len(s) && s[*i] >= '0' && s[*i] <= '9' {
		result = result*10 + uint64(s[*i]-'0')
		*i++
	}
	return result
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// parseFormat builds a Format from ref's format string. sample is the
// already-parsed source format when parsing a destination (nil for the
// source itself); write receives the container's header stamper on the
// destination side.
func parseFormat(ref *Reference, write *headerWriter, sample *Format) Format {
	fault.Check(ref.Format != "", "reference has no format string")
	s := ref.Format

	checkTag := func(c byte) {
		fault.Checkf('A' <= c && c <= 'Z' || c == '_', "invalid channel tag %q", string(c))
	}

	format := newFormat()
	typeID := 0
	padSet := false

	i := 0
	for i < len(s) {
		c := s[i]
		i++

		if c == '.' {
			typeID = matchWord(s, &i, containerTags) + 1
			continue
		}

		if c == '*' {
			switch matchWord(s, &i, formatSettings) {
			case 0: // PAD
				format.Pad = int(parseNumber(s, &i))
				padSet = true

			case 1: // SAME
				if sample != nil {
					return *sample
				}

			case 2: // REP
				fault.Check(i < len(s), "*REP is missing its destination channel")
				id, ok := format.ID(s[i])
				fault.Checkf(ok, "*REP destination channel %q is not declared", string(s[i]))
				i++

				rep := Replacement{Index: id}
				fault.Check(i < len(s), "*REP is missing its source")
				if isDigit(s[i]) {
					rep.Const = parseNumber(s, &i)
					rep.HasConst = true
				} else {
					rep.Source = s[i]
					i++
				}

				// Replacement rules act on the destination side only.
				if sample != nil {
					format.Replacements = append(format.Replacements, rep)
				}

			case 3: // ALPHA
				fault.Check(i < len(s), "*ALPHA is missing its channel")
				checkTag(s[i])
				format.Alpha = s[i]
				i++
			}
			continue
		}

		checkTag(c)
		format.Channels = append(format.Channels, Channel{c, uint(parseNumber(s, &i))})
	}

	switch typeID {
	case 0:
		// Raw channel data, DIB row conventions by default.
		userPad := format.Pad
		makeBmp(ref, false, false, &format, write)
		if padSet {
			format.Pad = userPad
		}

	case 1: // DIB
		format.ClearLayout()
		makeBmp(ref, false, true, &format, write)

	case 2: // BMP
		format.ClearLayout()
		makeBmp(ref, true, true, &format, write)

	case 3: // PNG
		format.ClearLayout()
		makePng(ref, &format, write)

	case 4: // JPG
		format.ClearLayout()
		makeJpg(ref, &format, write)

	case 5: // ANYF
		format.ClearLayout()
		if write == nil {
			fault.Check(ref.Bytes >= 16, "too few bytes to sniff a container")
			data := ref.data()
			switch {
			case data[0] == 0xFF && data[1] == 0xD8:
				makeJpg(ref, &format, write)
			case data[0] == 'B' && data[1] == 'M':
				makeBmp(ref, true, true, &format, write)
			default:
				sig := [8]byte(data[:8])
				fault.Check(sig == pngSignature, "unrecognized container magic")
				makePng(ref, &format, write)
			}
		} else {
			makePng(ref, &format, write)
		}

	default:
		fault.Fail("unknown container tag")
	}

	format.CalculateBits()
	return format
}
