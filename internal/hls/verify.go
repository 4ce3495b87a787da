package hls

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/grafov/m3u8"
)

// Segment durations may legitimately overshoot the declared target by a
// little; anything beyond this tolerance marks the rendition invalid.
const segmentDurationTolerance = 1.5

// VariantReport is the verification outcome for one rendition manifest.
type VariantReport struct {
	URI            string  `json:"uri"`
	IsEndList      bool    `json:"is_end_list"`
	TargetDuration float64 `json:"target_duration"`
	SegmentsCount  int     `json:"segments_count"`
	IsValid        bool    `json:"is_valid"`
	Error          string  `json:"error,omitempty"`
}

// Report is the aggregate verification result. It is stored verbatim as the
// Video's diagnostic payload regardless of overall validity.
type Report struct {
	IsValid       bool            `json:"is_valid"`
	Variants      []VariantReport `json:"variants,omitempty"`
	MasterVersion uint8           `json:"master_version,omitempty"`
	TotalVariants int             `json:"total_variants"`
	Error         string          `json:"error,omitempty"`
}

// JSON renders the report for the catalog's diagnostic column.
func (r Report) JSON() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return `{"is_valid":false,"error":"report marshal failed"}`
	}
	return string(raw)
}

// VerifyOutput inspects an encode working directory through its local master
// manifest. A rendition is valid iff its manifest exists, lists at least one
// segment, every segment fits the declared target duration plus tolerance,
// and the end-of-list marker is present. The overall result is valid iff at
// least one rendition was checked and every rendition passed.
func VerifyOutput(masterPath string) Report {
	master, err := loadMaster(masterPath)
	if err != nil {
		return Report{IsValid: false, Error: err.Error()}
	}
	if len(master.Variants) == 0 {
		return Report{IsValid: false, Error: "no variant playlists found in master"}
	}

	baseDir := filepath.Dir(masterPath)
	variants := make([]VariantReport, 0, len(master.Variants))
	for _, variant := range master.Variants {
		variants = append(variants, verifyVariant(baseDir, variant.URI))
	}

	allValid := true
	for _, v := range variants {
		if !v.IsValid || !v.IsEndList {
			allValid = false
			break
		}
	}

	return Report{
		IsValid:       allValid,
		Variants:      variants,
		MasterVersion: master.Version(),
		TotalVariants: len(variants),
	}
}

func verifyVariant(baseDir, uri string) VariantReport {
	path := filepath.Join(baseDir, uri)
	media, err := loadMedia(path)
	if err != nil {
		return VariantReport{URI: uri, IsValid: false, Error: "missing"}
	}

	segments := 0
	durationsValid := true
	for _, segment := range media.Segments {
		if segment == nil {
			continue
		}
		segments++
		if segment.Duration > media.TargetDuration+segmentDurationTolerance {
			durationsValid = false
		}
	}

	return VariantReport{
		URI:            uri,
		IsEndList:      media.Closed,
		TargetDuration: media.TargetDuration,
		SegmentsCount:  segments,
		IsValid:        segments > 0 && durationsValid,
	}
}

func loadMaster(path string) (*m3u8.MasterPlaylist, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errMasterMissing
	}
	defer file.Close()

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(file), true)
	if err != nil || listType != m3u8.MASTER {
		return nil, errMasterInvalid
	}
	return playlist.(*m3u8.MasterPlaylist), nil
}

func loadMedia(path string) (*m3u8.MediaPlaylist, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(file), true)
	if err != nil {
		return nil, err
	}
	if listType != m3u8.MEDIA {
		return nil, errNotMediaPlaylist
	}
	return playlist.(*m3u8.MediaPlaylist), nil
}

type verifyError string

func (e verifyError) Error() string { return string(e) }

const (
	errMasterMissing    = verifyError("master playlist file not found")
	errMasterInvalid    = verifyError("master playlist not parseable")
	errNotMediaPlaylist = verifyError("expected media playlist")
)
