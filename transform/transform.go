// Package transform implements RecordTransformer: stage-1 sanity
// filtering, per-observation filtering and normalization, quality-weight
// assignment, the mobile-hotspot OUI policy, and canonical serialization of
// surviving measurements. The decode step follows the teacher's
// Decoder/ErrCorrupt pattern (itemimage.JSONDecoder), generalized from
// DynamoDB PITR images to WiFi scan lines.
package transform

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/wifiloc/pipeline/config"
	"github.com/wifiloc/pipeline/metrics"
)

// ErrCorrupt is returned when a line cannot be parsed as a scan record.
var ErrCorrupt = fmt.Errorf("corrupt line")

// HotspotAction enumerates the mobile-hotspot OUI policy actions.
type HotspotAction string

const (
	ActionFlag    HotspotAction = "FLAG"
	ActionExclude HotspotAction = "EXCLUDE"
	ActionLogOnly HotspotAction = "LOG_ONLY"
)

// rawLine is the permissive shape of one object line; unknown fields are
// ignored.
type rawLine struct {
	DeviceID  string `json:"deviceId"`
	Timestamp string `json:"timestamp"`
	Location  struct {
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
		Accuracy float64 `json:"accuracy"`
	} `json:"location"`
	Scans []rawScan `json:"scans"`
}

type rawScan struct {
	Mac       string   `json:"mac"`
	RSSI      int      `json:"rssi"`
	Freq      *int     `json:"freq,omitempty"`
	SSID      *string  `json:"ssid,omitempty"`
	Connected bool     `json:"connected,omitempty"`
	LinkSpeed *float64 `json:"linkSpeed,omitempty"`
}

// Measurement is the canonical, normalized output record.
type Measurement struct {
	DeviceID          string
	ObservedAt        time.Time
	Latitude          float64
	Longitude         float64
	LocationAccuracyM float64
	Mac               string
	RSSIDbm           int
	SSID              string
	FrequencyMHz      int
	Connected         bool
	LinkSpeedMbps     float64
	QualityWeight     float64
	HotspotFlag       bool
}

// canonical is the exact external wire shape spec.md §6 locks.
type canonical struct {
	DeviceID          string  `json:"device_id"`
	ObservedAt        string  `json:"observed_at"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	LocationAccuracyM float64 `json:"location_accuracy_m"`
	Mac               string  `json:"mac"`
	RSSIDbm           int     `json:"rssi_dbm"`
	SSID              string  `json:"ssid,omitempty"`
	FrequencyMHz      int     `json:"frequency_mhz,omitempty"`
	Connected         bool    `json:"connected"`
	LinkSpeedMbps     float64 `json:"link_speed_mbps,omitempty"`
	QualityWeight     float64 `json:"quality_weight"`
	HotspotFlag       bool    `json:"hotspot_flag"`
}

// MarshalJSON produces the canonical delivery record.
func (m Measurement) MarshalJSON() ([]byte, error) {
	return json.Marshal(canonical{
		DeviceID:          m.DeviceID,
		ObservedAt:        m.ObservedAt.Format(time.RFC3339),
		Latitude:          m.Latitude,
		Longitude:         m.Longitude,
		LocationAccuracyM: m.LocationAccuracyM,
		Mac:               m.Mac,
		RSSIDbm:           m.RSSIDbm,
		SSID:              m.SSID,
		FrequencyMHz:      m.FrequencyMHz,
		Connected:         m.Connected,
		LinkSpeedMbps:     m.LinkSpeedMbps,
		QualityWeight:     m.QualityWeight,
		HotspotFlag:       m.HotspotFlag,
	})
}

// Transformer applies stage-1 filtering and per-observation normalization.
type Transformer struct {
	cfg     config.Filtering
	ouiSet  map[string]struct{}
	metrics *metrics.Metrics
}

// New constructs a Transformer from the filtering configuration.
func New(cfg config.Filtering, m *metrics.Metrics) *Transformer {
	ouiSet := make(map[string]struct{}, len(cfg.MobileHotspot.OUIBlacklist))
	for _, oui := range cfg.MobileHotspot.OUIBlacklist {
		ouiSet[strings.ToLower(oui)] = struct{}{}
	}
	return &Transformer{cfg: cfg, ouiSet: ouiSet, metrics: m}
}

// Transform decodes one object line and returns zero or more surviving
// Measurements. requireObservations additionally drops the whole line if it
// has zero scans, per the StreamRouter's StrictFeedProcessor policy.
func (t *Transformer) Transform(line []byte, requireObservations bool) ([]Measurement, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		t.metrics.IncParseFailures()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if requireObservations && len(raw.Scans) == 0 {
		t.metrics.IncSanityDrops()
		return nil, nil
	}

	observedAt, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil || raw.Timestamp == "" {
		t.metrics.IncSanityDrops()
		return nil, nil
	}
	if raw.Location.Accuracy > t.cfg.MaxLocationAccuracy {
		t.metrics.IncSanityDrops()
		return nil, nil
	}
	if raw.Location.Lat < -90 || raw.Location.Lat > 90 || raw.Location.Lon < -180 || raw.Location.Lon > 180 {
		t.metrics.IncSanityDrops()
		return nil, nil
	}
	if len(raw.Scans) == 0 {
		t.metrics.IncSanityDrops()
		return nil, nil
	}

	out := make([]Measurement, 0, len(raw.Scans))
	for _, s := range raw.Scans {
		if s.RSSI < t.cfg.MinRSSI || s.RSSI > t.cfg.MaxRSSI {
			continue
		}

		mac := normalizeMac(s.Mac)
		if mac == "" {
			continue
		}

		hotspot := false
		if t.cfg.MobileHotspot.Enabled {
			if _, blacklisted := t.ouiSet[ouiOf(mac)]; blacklisted {
				switch HotspotAction(t.cfg.MobileHotspot.Action) {
				case ActionExclude:
					t.metrics.IncOUIExcluded()
					continue
				case ActionLogOnly:
					t.metrics.IncOUIExcluded()
					hotspot = true
				default: // ActionFlag
					hotspot = true
				}
			}
		}

		linkSpeed := 0.0
		if s.LinkSpeed != nil {
			linkSpeed = *s.LinkSpeed
		}

		weight := t.cfg.ScanQualityWeight
		if s.Connected {
			if linkSpeed < t.cfg.LowLinkSpeedThresholdMbps {
				weight = t.cfg.LowLinkSpeedQualityWeight
			} else {
				weight = t.cfg.ConnectedQualityWeight
			}
		}

		freq := 0
		if s.Freq != nil {
			freq = *s.Freq
		}
		ssid := ""
		if s.SSID != nil {
			ssid = *s.SSID
		}

		out = append(out, Measurement{
			DeviceID:          raw.DeviceID,
			ObservedAt:        observedAt,
			Latitude:          raw.Location.Lat,
			Longitude:         raw.Location.Lon,
			LocationAccuracyM: raw.Location.Accuracy,
			Mac:               mac,
			RSSIDbm:           s.RSSI,
			SSID:              ssid,
			FrequencyMHz:      freq,
			Connected:         s.Connected,
			LinkSpeedMbps:     linkSpeed,
			QualityWeight:     weight,
			HotspotFlag:       hotspot,
		})
	}

	for range out {
		t.metrics.IncRecordsAccepted()
	}
	return out, nil
}

// normalizeMac lowercases and colon-separates a MAC address; returns "" if
// the input does not contain six octets.
func normalizeMac(raw string) string {
	cleaned := strings.ToLower(raw)
	cleaned = strings.NewReplacer("-", ":", ".", ":").Replace(cleaned)
	parts := strings.Split(cleaned, ":")
	if len(parts) != 6 {
		// handle unseparated "aabbccddeeff" form
		if len(cleaned) == 12 && !strings.Contains(cleaned, ":") {
			parts = []string{cleaned[0:2], cleaned[2:4], cleaned[4:6], cleaned[6:8], cleaned[8:10], cleaned[10:12]}
		} else {
			return ""
		}
	}
	for _, p := range parts {
		if len(p) != 2 {
			return ""
		}
	}
	return strings.Join(parts, ":")
}

// ouiOf returns the first three octets of a normalized MAC address.
func ouiOf(mac string) string {
	parts := strings.Split(mac, ":")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:3], ":")
}
