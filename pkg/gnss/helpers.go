// Package gnss provides unit and coordinate conversion helpers for
// GNSS navigation data.
package gnss

import (
	"fmt"
	"math"
)

// conversion factors
const (
	metersPerFoot = 0.3048
	knotsPerMs    = 1.9438444924
	mphPerMs      = 2.2369362921
	kmphPerMs     = 3.6
)

// Coordinate axis for hemisphere suffix selection
type Axis string

const (
	AxisLat Axis = "LA"
	AxisLon Axis = "LN"
)

// DegToDMS converts decimal degrees to a degrees/minutes/seconds
// string with a hemisphere suffix, e.g. 53.450800 -> 53°27′2.88″N
func DegToDMS(degrees float64, axis Axis) string {
	negative := degrees < 0
	degrees = math.Abs(degrees)

	totalSeconds := degrees * 3600
	minutes := math.Floor(totalSeconds / 60)
	seconds := totalSeconds - minutes*60
	deg := math.Floor(minutes / 60)
	minutes -= deg * 60

	return fmt.Sprintf("%d°%d′%g″%s",
		int(deg), int(minutes), round(seconds, 3), hemisphere(negative, axis))
}

// DegToDMM converts decimal degrees to a degrees/decimal-minutes
// string with a hemisphere suffix, e.g. 53.450800 -> 53°27.048′N
func DegToDMM(degrees float64, axis Axis) string {
	negative := degrees < 0
	degrees = math.Abs(degrees)

	deg := math.Floor(degrees)
	minutes := (degrees - deg) * 60

	return fmt.Sprintf("%d°%g′%s",
		int(deg), round(minutes, 5), hemisphere(negative, axis))
}

func hemisphere(negative bool, axis Axis) string {
	if axis == AxisLat {
		if negative {
			return "S"
		}
		return "N"
	}
	if negative {
		return "W"
	}
	return "E"
}

// MToFt converts meters to feet
func MToFt(meters float64) float64 { return meters / metersPerFoot }

// FtToM converts feet to meters
func FtToM(feet float64) float64 { return feet * metersPerFoot }

// MsToKmph converts meters per second to kilometers per hour
func MsToKmph(ms float64) float64 { return ms * kmphPerMs }

// MsToMph converts meters per second to miles per hour
func MsToMph(ms float64) float64 { return ms * mphPerMs }

// MsToKnots converts meters per second to knots
func MsToKnots(ms float64) float64 { return ms * knotsPerMs }

// KmphToMs converts kilometers per hour to meters per second
func KmphToMs(kmph float64) float64 { return kmph / kmphPerMs }

// KnotsToMs converts knots to meters per second
func KnotsToMs(knots float64) float64 { return knots / knotsPerMs }

// PosToISO6709 formats a position as an ISO 6709 annex H string,
// e.g. +27.5916+086.5640+8850CRSWGS_84/
func PosToISO6709(lat, lon, alt float64) string {
	return fmt.Sprintf("%+.4f%+09.4f%+.0fCRSWGS_84/", lat, lon, alt)
}

// CelToCart converts celestial coordinates (elevation and azimuth in
// degrees) to Cartesian x/y projection coordinates
func CelToCart(elevation, azimuth float64) (x, y float64) {
	elevation = elevation * math.Pi / 180
	azimuth = azimuth * math.Pi / 180
	x = math.Cos(elevation) * math.Cos(azimuth)
	y = math.Cos(elevation) * math.Sin(azimuth)
	return x, y
}

// SVIDToGNSSID maps an NMEA satellite ID to its UBX gnssId
// constellation number
func SVIDToGNSSID(svid int) int {
	switch {
	case svid >= 120 && svid <= 158:
		return 1 // SBAS
	case svid >= 211 && svid <= 246:
		return 2 // Galileo
	case (svid >= 159 && svid <= 163) || (svid >= 33 && svid <= 64):
		return 3 // BeiDou
	case svid >= 173 && svid <= 182:
		return 4 // IMES
	case svid >= 193 && svid <= 202:
		return 5 // QZSS
	case (svid >= 65 && svid <= 96) || svid == 255:
		return 6 // GLONASS
	default:
		return 0 // GPS
	}
}

// round rounds v to the given number of decimal places
func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
