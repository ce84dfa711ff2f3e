// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Identity decision constants
const (
	// DefaultIdentityThreshold is the minimum display confidence for a named verdict
	// when IDENTITY_THRESHOLD is not set
	DefaultIdentityThreshold = 0.65

	// DefaultMatchLimit is the number of nearest neighbours requested per probe
	DefaultMatchLimit = 5
)

// Face cache constants
const (
	// HNSWMaxNeighbors is the M parameter of the face graph
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the candidate list size used while searching the face graph
	HNSWEfSearch = 64
)

// Image constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to the embedding server
	MaxImageSize = 1920
)

// OSINT constants
const (
	// GeneralResults is the number of results requested for the general query
	GeneralResults = 10

	// DorkResults is the number of results requested for each dork query
	DorkResults = 5

	// MaxSearchResults is the hard cap the search API accepts per request
	MaxSearchResults = 10
)
