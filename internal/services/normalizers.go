package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Canonical attribute keys
const (
	AttrRAM           = "ram"
	AttrStorage       = "storage"
	AttrScreenSize    = "screen_size"
	AttrBattery       = "battery"
	AttrCamera        = "camera"
	AttrFrontCamera   = "front_camera"
	AttrMegapixels    = "megapixels"
	AttrResolution    = "resolution"
	AttrProcessor     = "processor"
	AttrColor         = "color"
	AttrOS            = "os"
	AttrCompatibility = "compatibility"
	AttrConnectivity  = "connectivity"
)

var attributeKeyAliases = map[string]string{
	"memory":             AttrRAM,
	"ram_memory":         AttrRAM,
	"rom":                AttrStorage,
	"internal_storage":   AttrStorage,
	"internal_memory":    AttrStorage,
	"storage_capacity":   AttrStorage,
	"display_size":       AttrScreenSize,
	"screen":             AttrScreenSize,
	"display":            AttrScreenSize,
	"battery_capacity":   AttrBattery,
	"main_camera":        AttrCamera,
	"rear_camera":        AttrCamera,
	"back_camera":        AttrCamera,
	"selfie_camera":      AttrFrontCamera,
	"colour":             AttrColor,
	"operating_system":   AttrOS,
	"cpu":                AttrProcessor,
	"chipset":            AttrProcessor,
	"display_resolution": AttrResolution,
}

// CanonicalAttributeKey normalizes a key and maps common synonyms onto one name
func CanonicalAttributeKey(key string) string {
	k := NormalizeAttributeKey(key)
	if alias, ok := attributeKeyAliases[k]; ok {
		return alias
	}
	return k
}

// NormalizeAttributeValue applies the value normalizer registered for a canonical key.
// Values without a normalizer are only trimmed.
func NormalizeAttributeValue(key, value string) string {
	value = strings.TrimSpace(value)
	switch key {
	case AttrRAM:
		return NormalizeMemory(value)
	case AttrStorage:
		return NormalizeStorage(value)
	case AttrScreenSize:
		return NormalizeScreenSize(value)
	case AttrBattery:
		return NormalizeBattery(value)
	case AttrCamera, AttrFrontCamera, AttrMegapixels:
		return NormalizeMegapixels(value)
	case AttrResolution:
		return NormalizeResolution(value)
	default:
		return value
	}
}

var (
	sizePattern       = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(tb|gb|mb)?\b`)
	screenPattern     = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(?:"|''|”|in\b|inch\b|inches\b)?`)
	batteryPattern    = regexp.MustCompile(`(?i)^(\d+)\s*(?:mah\b)?`)
	megapixelPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:mp|megapixels?)\b`)
	numberListPattern = regexp.MustCompile(`^\d+(?:\.\d+)?(?:\s*[+/,&]\s*\d+(?:\.\d+)?)*$`)
	numberPattern     = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// NormalizeMemory renders a memory size as "8GB". Values under 1024MB keep MB.
func NormalizeMemory(value string) string {
	value = strings.TrimSpace(value)
	m := sizePattern.FindStringSubmatch(value)
	if m == nil {
		return value
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return value
	}
	switch strings.ToUpper(m[2]) {
	case "MB":
		if n >= 1024 {
			return formatNumber(n/1024) + "GB"
		}
		return formatNumber(n) + "MB"
	case "TB":
		return formatNumber(n*1024) + "GB"
	default:
		return formatNumber(n) + "GB"
	}
}

// NormalizeStorage renders a storage size as "256GB" or "1TB"
func NormalizeStorage(value string) string {
	value = strings.TrimSpace(value)
	m := sizePattern.FindStringSubmatch(value)
	if m == nil {
		return value
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return value
	}
	switch strings.ToUpper(m[2]) {
	case "TB":
		return formatNumber(n) + "TB"
	case "MB":
		n = n / 1024
	}
	if n >= 1024 && n == math.Trunc(n) && int64(n)%1024 == 0 {
		return formatNumber(n/1024) + "TB"
	}
	return formatNumber(n) + "GB"
}

// NormalizeScreenSize renders a diagonal in inches as `6.8"`
func NormalizeScreenSize(value string) string {
	value = strings.TrimSpace(value)
	m := screenPattern.FindStringSubmatch(value)
	if m == nil {
		return value
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return value
	}
	return formatNumber(n) + `"`
}

// NormalizeBattery renders a capacity as "5000mAh"
func NormalizeBattery(value string) string {
	value = strings.TrimSpace(value)
	m := batteryPattern.FindStringSubmatch(strings.ReplaceAll(value, ",", ""))
	if m == nil {
		return value
	}
	return m[1] + "mAh"
}

// NormalizeMegapixels renders camera resolutions as "48MP", joining multi-camera setups with "+"
func NormalizeMegapixels(value string) string {
	value = strings.TrimSpace(value)

	var numbers []string
	if matches := megapixelPattern.FindAllStringSubmatch(value, -1); len(matches) > 0 {
		for _, m := range matches {
			numbers = append(numbers, m[1])
		}
	} else if numberListPattern.MatchString(value) {
		numbers = numberPattern.FindAllString(value, -1)
	}
	if len(numbers) == 0 {
		return value
	}

	parts := make([]string, 0, len(numbers))
	for _, s := range numbers {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return value
		}
		parts = append(parts, formatNumber(n)+"MP")
	}
	return strings.Join(parts, "+")
}

// NormalizeResolution maps a display resolution onto 8K, 4K, 1440p, 1080p or 720p
func NormalizeResolution(value string) string {
	value = strings.TrimSpace(value)
	v := strings.ToLower(value)
	switch {
	case strings.Contains(v, "8k") || strings.Contains(v, "4320") || strings.Contains(v, "7680"):
		return "8K"
	case strings.Contains(v, "4k") || strings.Contains(v, "uhd") || strings.Contains(v, "2160") || strings.Contains(v, "3840"):
		return "4K"
	case strings.Contains(v, "1440") || strings.Contains(v, "qhd") || strings.Contains(v, "2k") || strings.Contains(v, "2560"):
		return "1440p"
	case strings.Contains(v, "1080") || strings.Contains(v, "fhd") || strings.Contains(v, "full hd") || strings.Contains(v, "1920"):
		return "1080p"
	case strings.Contains(v, "720") || strings.Contains(v, "hd") || strings.Contains(v, "1280"):
		return "720p"
	default:
		return value
	}
}

// leadingNumber parses the number a normalized value starts with
func leadingNumber(value string) (float64, bool) {
	s := numberPattern.FindString(value)
	if s == "" || !strings.HasPrefix(strings.TrimSpace(value), s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}
