package sourcemap

import (
	"fmt"
	"strings"
)

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base64Alphabet); i++ {
		idx[base64Alphabet[i]] = int8(i)
	}
	return idx
}()

// Every base64 digit carries 6 bits: continuation bit on top, 5 bits of
// value below. Sign goes into the lowest bit of the first digit.
func encodeVLQ(sb *strings.Builder, value int) {
	var vlq int
	if value < 0 {
		vlq = ((-value) << 1) | 1
	} else {
		vlq = value << 1
	}

	for {
		digit := vlq & 31
		vlq >>= 5
		if vlq != 0 {
			digit |= 32
		}
		sb.WriteByte(base64Alphabet[digit])
		if vlq == 0 {
			return
		}
	}
}

// decodeVLQ reads single value starting at position start and returns it
// together with position of the first unread byte.
func decodeVLQ(encoded string, start int) (int, int, error) {
	shift, vlq := 0, 0
	for {
		if start >= len(encoded) {
			return 0, start, fmt.Errorf("unexpected end of mappings at %d", start)
		}
		index := base64Index[encoded[start]]
		if index < 0 {
			return 0, start, fmt.Errorf("invalid base64 character %q at %d", encoded[start], start)
		}
		vlq |= (int(index) & 31) << shift
		start++
		shift += 5

		if (index & 32) == 0 {
			break
		}
	}

	value := vlq >> 1
	if (vlq & 1) != 0 {
		value = -value
	}
	return value, start, nil
}

// DecodeMappings parses "mappings" field of a source map into absolute
// positions. Segments without original position are kept with HasSource unset.
func DecodeMappings(encoded string) ([]Mapping, error) {
	var (
		result                                         []Mapping
		line, column                                   int
		sourceIndex, originalLine, originalColumn, nme int
	)

	for i := 0; i < len(encoded); {
		switch encoded[i] {
		case ';':
			line++
			column = 0
			i++
			continue
		case ',':
			i++
			continue
		}

		var (
			delta int
			err   error
		)
		if delta, i, err = decodeVLQ(encoded, i); err != nil {
			return nil, err
		}
		column += delta
		m := Mapping{GeneratedLine: line, GeneratedColumn: column}

		if i < len(encoded) && encoded[i] != ',' && encoded[i] != ';' {
			if delta, i, err = decodeVLQ(encoded, i); err != nil {
				return nil, err
			}
			sourceIndex += delta
			if delta, i, err = decodeVLQ(encoded, i); err != nil {
				return nil, err
			}
			originalLine += delta
			if delta, i, err = decodeVLQ(encoded, i); err != nil {
				return nil, err
			}
			originalColumn += delta

			m.HasSource = true
			m.SourceIndex, m.OriginalLine, m.OriginalColumn = sourceIndex, originalLine, originalColumn

			if i < len(encoded) && encoded[i] != ',' && encoded[i] != ';' {
				if delta, i, err = decodeVLQ(encoded, i); err != nil {
					return nil, err
				}
				nme += delta
				m.HasName = true
				m.NameIndex = nme
			}
		}
		result = append(result, m)
	}
	return result, nil
}

// EncodeMappings is the reverse of DecodeMappings. Mappings must be ordered by
// generated position.
func EncodeMappings(mappings []Mapping) string {
	var (
		sb                                             strings.Builder
		line, column                                   int
		sourceIndex, originalLine, originalColumn, nme int
		first                                          = true
	)

	for _, m := range mappings {
		if m.GeneratedLine != line {
			for ; line < m.GeneratedLine; line++ {
				sb.WriteByte(';')
			}
			column = 0
			first = true
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false

		encodeVLQ(&sb, m.GeneratedColumn-column)
		column = m.GeneratedColumn
		if !m.HasSource {
			continue
		}
		encodeVLQ(&sb, m.SourceIndex-sourceIndex)
		sourceIndex = m.SourceIndex
		encodeVLQ(&sb, m.OriginalLine-originalLine)
		originalLine = m.OriginalLine
		encodeVLQ(&sb, m.OriginalColumn-originalColumn)
		originalColumn = m.OriginalColumn
		if m.HasName {
			encodeVLQ(&sb, m.NameIndex-nme)
			nme = m.NameIndex
		}
	}
	return sb.String()
}
