// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geohash encodes coordinates into geohash strings. A geohash names a cell of a
// hierarchical grid: longer strings denote smaller cells and every hash is a prefix of the
// hashes of the cells it contains.
//
// Approximate cell sizes per precision:
//
//	1 → ~5000 km    4 → ~39 km     7 → ~153 m    10 → ~1.2 m
//	2 → ~1250 km    5 → ~5 km      8 → ~19 m     11 → ~15 cm
//	3 → ~156 km     6 → ~1.2 km    9 → ~2.4 m    12 → ~3.7 cm
package geohash

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// Alphabet is the geohash base-32 character set. It omits a, i, l and o.
	Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

	// DefaultPrecision yields cells of roughly 19 metres.
	DefaultPrecision = 8

	// MaxPrecision is the longest hash Encode produces (60 bits).
	MaxPrecision = 12

	bitsPerChar = 5

	metersPerDegree = 111_320.0
)

// ErrInvalidArgument is returned for non-finite or out of range coordinates and unsupported
// precisions.
var ErrInvalidArgument = errors.New("invalid argument")

// Encode returns the geohash of the given coordinate with precision characters.
//
// Longitude and latitude bits are interleaved, longitude first. Each bit halves the current
// interval of its axis; a coordinate in the upper half (inclusive of the midpoint) yields a 1.
func Encode(lat, lon float64, precision int) (string, error) {
	if err := validate(lat, lon, precision); err != nil {
		return "", err
	}

	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0

	var hash strings.Builder
	hash.Grow(precision)
	even := true
	bit, ch := 0, 0

	for hash.Len() < precision {
		if even {
			mid := (minLon + maxLon) / 2
			if lon >= mid {
				ch |= 1 << (bitsPerChar - 1 - bit)
				minLon = mid
			} else {
				maxLon = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (bitsPerChar - 1 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		even = !even

		if bit++; bit == bitsPerChar {
			hash.WriteByte(Alphabet[ch])
			bit, ch = 0, 0
		}
	}

	return hash.String(), nil
}

// Decode returns the center of the cell named by hash together with the half-height and
// half-width of the cell in degrees.
func Decode(hash string) (lat, lon, latErr, lonErr float64, err error) {
	if hash == "" || len(hash) > MaxPrecision {
		return 0, 0, 0, 0, fmt.Errorf("%w: geohash length %d", ErrInvalidArgument, len(hash))
	}

	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0
	even := true

	for i := 0; i < len(hash); i++ {
		idx := strings.IndexByte(Alphabet, hash[i])
		if idx < 0 {
			return 0, 0, 0, 0, fmt.Errorf("%w: invalid geohash character %q", ErrInvalidArgument, hash[i])
		}
		for b := bitsPerChar - 1; b >= 0; b-- {
			set := idx>>b&1 == 1
			if even {
				mid := (minLon + maxLon) / 2
				if set {
					minLon = mid
				} else {
					maxLon = mid
				}
			} else {
				mid := (minLat + maxLat) / 2
				if set {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			even = !even
		}
	}

	return (minLat + maxLat) / 2, (minLon + maxLon) / 2, (maxLat - minLat) / 2, (maxLon - minLon) / 2, nil
}

// Truncate shortens hash to n characters, which names the enclosing cell at precision n.
// Hashes already shorter than n are returned unchanged.
func Truncate(hash string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(hash) <= n {
		return hash
	}
	return hash[:n]
}

// CellSize returns the width and height in meters of a cell at the given precision, measured
// at the equator. Cells get narrower towards the poles. Unsupported precisions yield zero.
func CellSize(precision int) (width, height float64) {
	if precision < 1 || precision > MaxPrecision {
		return 0, 0
	}
	bits := precision * bitsPerChar
	lonBits := (bits + 1) / 2
	latBits := bits / 2
	width = 360 / math.Exp2(float64(lonBits)) * metersPerDegree
	height = 180 / math.Exp2(float64(latBits)) * metersPerDegree
	return width, height
}

func validate(lat, lon float64, precision int) error {
	switch {
	case math.IsNaN(lat) || math.IsInf(lat, 0):
		return fmt.Errorf("%w: latitude is not finite", ErrInvalidArgument)
	case math.IsNaN(lon) || math.IsInf(lon, 0):
		return fmt.Errorf("%w: longitude is not finite", ErrInvalidArgument)
	case lat < -90 || lat > 90:
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidArgument, lat)
	case lon < -180 || lon > 180:
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidArgument, lon)
	case precision < 1 || precision > MaxPrecision:
		return fmt.Errorf("%w: precision %d out of range [1, %d]", ErrInvalidArgument, precision, MaxPrecision)
	}
	return nil
}
