package models

import "strings"

// Station identifies a radio brand that owns contact forms. It is stored as the
// submission category.
type Station string

const (
	StationBigFM       Station = "bigfm"
	StationRPR1        Station = "rpr1"
	StationRegenbogen  Station = "regenbogen"
	StationRockFM      Station = "rockfm"
	StationBigKarriere Station = "bigkarriere"
)

var stationNames = map[Station]string{
	StationBigFM:       "BigFM",
	StationRPR1:        "RPR1",
	StationRegenbogen:  "Radio Regenbogen",
	StationRockFM:      "ROCK FM",
	StationBigKarriere: "BigKarriere",
}

// Stations lists every known station in display order.
func Stations() []Station {
	return []Station{StationBigFM, StationRPR1, StationRegenbogen, StationRockFM, StationBigKarriere}
}

// ParseStation normalises a URL segment into a known station.
func ParseStation(value string) (Station, bool) {
	s := Station(strings.ToLower(strings.TrimSpace(value)))
	_, ok := stationNames[s]
	return s, ok
}

// DisplayName returns the brand name shown to reviewers.
func (s Station) DisplayName() string {
	if name, ok := stationNames[s]; ok {
		return name
	}
	return string(s)
}
