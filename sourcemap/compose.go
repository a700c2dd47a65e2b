package sourcemap

import "fmt"

// Compose chains two maps: outer maps generated code to the code described
// by inner as its generated side. Result maps generated code of outer directly
// to sources of inner. Segments of outer which do not land on a mapped
// position of inner are dropped. When inner is nil outer is returned.
func Compose(outer, inner *Map) (*Map, error) {
	if outer == nil {
		return inner, nil
	}
	if inner == nil {
		return outer, nil
	}

	outerMappings, err := outer.Decode()
	if err != nil {
		return nil, fmt.Errorf("unable to decode outer map: %w", err)
	}
	innerMappings, err := inner.Decode()
	if err != nil {
		return nil, fmt.Errorf("unable to decode inner map: %w", err)
	}

	var (
		result      = &Map{Version: 3, File: outer.File}
		innerSrc    = inner.ResolvedSources()
		sourceIndex = make(map[int]int)
		nameIndex   = make(map[int]int)
		mappings    = make([]Mapping, 0, len(outerMappings))
		hasContent  bool
	)

	for _, om := range outerMappings {
		if !om.HasSource {
			continue
		}
		im := Find(innerMappings, om.OriginalLine, om.OriginalColumn)
		if im == nil || !im.HasSource || im.SourceIndex >= len(innerSrc) {
			continue
		}

		m := Mapping{
			GeneratedLine:   om.GeneratedLine,
			GeneratedColumn: om.GeneratedColumn,
			HasSource:       true,
			OriginalLine:    im.OriginalLine,
			OriginalColumn:  im.OriginalColumn,
		}
		idx, ok := sourceIndex[im.SourceIndex]
		if !ok {
			idx = len(result.Sources)
			sourceIndex[im.SourceIndex] = idx
			result.Sources = append(result.Sources, innerSrc[im.SourceIndex])
			var content *string
			if im.SourceIndex < len(inner.SourcesContent) {
				content = inner.SourcesContent[im.SourceIndex]
				hasContent = hasContent || content != nil
			}
			result.SourcesContent = append(result.SourcesContent, content)
		}
		m.SourceIndex = idx

		switch {
		case im.HasName && im.NameIndex < len(inner.Names):
			m.HasName, m.NameIndex = true, intern(&result.Names, nameIndex, -1-im.NameIndex, inner.Names[im.NameIndex])
		case om.HasName && om.NameIndex < len(outer.Names):
			m.HasName, m.NameIndex = true, intern(&result.Names, nameIndex, om.NameIndex, outer.Names[om.NameIndex])
		}
		mappings = append(mappings, m)
	}

	if !hasContent {
		result.SourcesContent = nil
	}
	if result.Sources == nil {
		result.Sources = []string{}
	}
	if result.Names == nil {
		result.Names = []string{}
	}
	result.Mappings = EncodeMappings(mappings)
	return result, nil
}

// intern keeps names unique in the result while remembering where each input
// name went. Inner names use negative keys.
func intern(names *[]string, seen map[int]int, key int, name string) int {
	if idx, ok := seen[key]; ok {
		return idx
	}
	for i, n := range *names {
		if n == name {
			seen[key] = i
			return i
		}
	}
	idx := len(*names)
	*names = append(*names, name)
	seen[key] = idx
	return idx
}
