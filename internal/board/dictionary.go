// Package board describes fiducial marker boards: the dictionary a board is
// printed from and the grid geometry that places each marker's corners in the
// board frame.
package board

import (
	"fmt"
	"sort"

	"github.com/banshee-data/markercal/internal/vision"
)

// ErrUnknownDictionary is returned for a dictionary token outside the known set.
var ErrUnknownDictionary = fmt.Errorf("%w: unknown dictionary", vision.ErrConfiguration)

// Dictionary identifies a predefined marker dictionary. Values follow the
// predefined-dictionary numbering used by OpenCV's aruco module so adapters
// can pass them through.
type Dictionary int

// Known dictionaries: four bit-grid sizes times four capacities, plus the
// original ArUco dictionary.
const (
	Dict4X4_50 Dictionary = iota
	Dict4X4_100
	Dict4X4_250
	Dict4X4_1000
	Dict5X5_50
	Dict5X5_100
	Dict5X5_250
	Dict5X5_1000
	Dict6X6_50
	Dict6X6_100
	Dict6X6_250
	Dict6X6_1000
	Dict7X7_50
	Dict7X7_100
	Dict7X7_250
	Dict7X7_1000
	DictArucoOriginal
)

type dictionaryInfo struct {
	name     string
	capacity int
}

var dictionaries = map[Dictionary]dictionaryInfo{
	Dict4X4_50:        {"DICT_4X4_50", 50},
	Dict4X4_100:       {"DICT_4X4_100", 100},
	Dict4X4_250:       {"DICT_4X4_250", 250},
	Dict4X4_1000:      {"DICT_4X4_1000", 1000},
	Dict5X5_50:        {"DICT_5X5_50", 50},
	Dict5X5_100:       {"DICT_5X5_100", 100},
	Dict5X5_250:       {"DICT_5X5_250", 250},
	Dict5X5_1000:      {"DICT_5X5_1000", 1000},
	Dict6X6_50:        {"DICT_6X6_50", 50},
	Dict6X6_100:       {"DICT_6X6_100", 100},
	Dict6X6_250:       {"DICT_6X6_250", 250},
	Dict6X6_1000:      {"DICT_6X6_1000", 1000},
	Dict7X7_50:        {"DICT_7X7_50", 50},
	Dict7X7_100:       {"DICT_7X7_100", 100},
	Dict7X7_250:       {"DICT_7X7_250", 250},
	Dict7X7_1000:      {"DICT_7X7_1000", 1000},
	DictArucoOriginal: {"DICT_ARUCO_ORIGINAL", 1024},
}

var dictionaryByName = func() map[string]Dictionary {
	m := make(map[string]Dictionary, len(dictionaries))
	for d, info := range dictionaries {
		m[info.name] = d
	}
	return m
}()

// LookupDictionary resolves a dictionary token such as "DICT_6X6_250".
func LookupDictionary(name string) (Dictionary, error) {
	d, ok := dictionaryByName[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownDictionary, name)
	}
	return d, nil
}

// DictionaryNames returns every known token, sorted.
func DictionaryNames() []string {
	names := make([]string, 0, len(dictionaryByName))
	for name := range dictionaryByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns the dictionary token.
func (d Dictionary) String() string {
	if info, ok := dictionaries[d]; ok {
		return info.name
	}
	return fmt.Sprintf("Dictionary(%d)", int(d))
}

// Valid reports whether d is one of the known dictionaries.
func (d Dictionary) Valid() bool {
	_, ok := dictionaries[d]
	return ok
}

// Capacity returns the number of distinct marker ids in the dictionary.
func (d Dictionary) Capacity() int {
	return dictionaries[d].capacity
}
