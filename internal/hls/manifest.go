package hls

import (
	"fmt"
	"sort"
	"strings"
)

// Synthetic bandwidth base for catalog manifest entries. Entries get
// ascending values (base + sort index); the numbers distinguish entries, they
// do not describe encoded bitrates.
const catalogBandwidthBase = 2000000

// EncodeRootPrefix is the shared object-store prefix every finished video's
// output folder lives under, and the location of the aggregate manifest.
const EncodeRootPrefix = "encode/"

// CatalogManifestKey is the fixed object key of the aggregate manifest.
const CatalogManifestKey = EncodeRootPrefix + MasterPlaylistName

// CatalogManifestContentType is the MIME type for written manifests.
const CatalogManifestContentType = "application/x-mpegURL"

// CatalogManifestCacheControl disables client caching so players refetch the
// aggregate manifest after each regeneration.
const CatalogManifestCacheControl = "no-cache, no-store, must-revalidate"

// BuildCatalogManifest combines every uploaded video's output folder into a
// single top-level manifest. Each folder appears as one entry named after its
// leaf segment, pointing at the folder's own master manifest. Folders are
// emitted in sorted order with ascending synthetic bandwidth values.
func BuildCatalogManifest(prefixes []string) string {
	sorted := append([]string(nil), prefixes...)
	sort.Strings(sorted)

	lines := []string{"#EXTM3U", "#EXT-X-VERSION:3", ""}
	for i, prefix := range sorted {
		name := leafFolder(prefix)
		if name == "" {
			continue
		}
		lines = append(lines,
			fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,NAME=%q", catalogBandwidthBase+i, name),
			name+"/"+MasterPlaylistName,
			"",
		)
	}
	return strings.Join(lines, "\n")
}

func leafFolder(prefix string) string {
	trimmed := strings.TrimSuffix(prefix, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
