// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/windward/pkg/httpx"
)

// The beacon pages are server-rendered HTML with no stable markup, but
// the French text labels next to each value have been stable for years.
// Extraction is anchored on those labels rather than on tag structure.
// The skip expression (?:[^…<]|<[^>]*>)* steps over punctuation and
// whole HTML tags between the marker and the value, so markup changes
// between label and value cells do not break extraction.
var (
	beaconSpeedRe     = regexp.MustCompile(`Moyen sur 10min(?:[^0-9<]|<[^>]*>)*([0-9]+(?:[.,][0-9]+)?)`)
	beaconDirectionRe = regexp.MustCompile(`Direction(?:\s+du\s+vent)?(?:[^A-Za-z0-9<]|<[^>]*>)*([A-Za-z]{1,3}|[0-9]{1,3})`)
	beaconTempRe      = regexp.MustCompile(`Temp(?:é|&eacute;)rature(?:[^0-9<-]|<[^>]*>)*(-?[0-9]+(?:[.,][0-9]+)?)`)
	beaconTimestampRe = regexp.MustCompile(`Relev(?:é|&eacute;) du(?:[^0-9<]|<[^>]*>)*([0-9]{2}/[0-9]{2}/[0-9]{4})(?:[^0-9<]|<[^>]*>)*([0-9]{2}:[0-9]{2})`)
)

// staleThreshold is how old a beacon reading may be before it is logged
// as stale. Stale readings are still emitted; the matcher's tolerance
// decides whether they pair with anything.
const staleThreshold = 2 * time.Hour

// beaconReading is one parsed beacon page. Fields are nil when their
// marker was absent or unparseable.
type beaconReading struct {
	WindSpeed     *float64 // km/h
	WindDirection *float64 // degrees [0, 360)
	Temperature   *float64 // °C
	ObservedAt    *time.Time
}

// beaconNetwork captures what differs between the two beacon networks:
// how to address a beacon, which cardinal vocabulary the page uses, and
// which timezone its timestamps are written in.
type beaconNetwork struct {
	buildURL  func(beaconID int) string
	cardinals map[string]float64
	location  *time.Location
}

// parseBeaconHTML extracts a reading from one page. Individual fields
// fail independently; a page with only a wind speed still yields that
// point.
func (n *beaconNetwork) parseBeaconHTML(html string) beaconReading {
	var r beaconReading

	if m := beaconSpeedRe.FindStringSubmatch(html); m != nil {
		if v, err := parseFrenchFloat(m[1]); err == nil {
			r.WindSpeed = &v
		}
	}
	if m := beaconDirectionRe.FindStringSubmatch(html); m != nil {
		if deg, ok := n.parseDirection(m[1]); ok {
			r.WindDirection = &deg
		}
	}
	if m := beaconTempRe.FindStringSubmatch(html); m != nil {
		if v, err := parseFrenchFloat(m[1]); err == nil {
			r.Temperature = &v
		}
	}
	if m := beaconTimestampRe.FindStringSubmatch(html); m != nil {
		if ts, err := time.ParseInLocation("02/01/2006 15:04", m[1]+" "+m[2], n.location); err == nil {
			utc := ts.UTC()
			r.ObservedAt = &utc
		}
	}
	return r
}

// parseDirection accepts either a cardinal from the network's table or
// a plain numeric bearing with an optional degree sign.
func (n *beaconNetwork) parseDirection(raw string) (float64, bool) {
	token := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "°"))
	if deg, ok := n.cardinals[strings.ToUpper(token)]; ok {
		return deg, true
	}
	if v, err := strconv.ParseFloat(token, 64); err == nil && v >= 0 && v < 360 {
		return v, true
	}
	return 0, false
}

// parseFrenchFloat handles the decimal comma.
func parseFrenchFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

// collectBeacon is the shared observation flow for both networks:
// fetch the page, parse, stale-check, and emit range-checked points.
func collectBeacon(ctx context.Context, deps *Deps, c *Collector, network *beaconNetwork, req ObservationRequest) []ObservationPoint {
	if req.BeaconID == nil {
		return nil
	}

	var html string
	endpoint := network.buildURL(*req.BeaconID)
	err := guardedFetch(ctx, deps, c, "observation", func(ctx context.Context) error {
		client := httpx.NewClient(c.Timeout)
		defer client.Close()

		var fetchErr error
		html, fetchErr = client.GetText(ctx, endpoint, map[string]string{
			"User-Agent": beaconUserAgent,
		})
		return fetchErr
	})
	if err != nil {
		logFetchError(deps.Logger, c.Name, "observation", err)
		return nil
	}

	reading := network.parseBeaconHTML(html)
	observedAt := req.ObservationTime.UTC()
	if reading.ObservedAt != nil {
		observedAt = *reading.ObservedAt
		if age := req.ObservationTime.UTC().Sub(observedAt); age > staleThreshold {
			deps.Logger.Warn("beacon reading is stale",
				"collector", c.Name, "beacon_id", *req.BeaconID,
				"observed_at", observedAt, "age", age)
		}
	} else {
		deps.Logger.Warn("beacon page missing timestamp, using request time",
			"collector", c.Name, "beacon_id", *req.BeaconID)
	}

	var points []ObservationPoint
	emit := func(param string, value float64) {
		id, wanted := req.Parameters[param]
		if !wanted {
			return
		}
		if !c.inRange(param, value) {
			deps.Logger.Warn("dropping aberrant observation value",
				"collector", c.Name, "parameter", param,
				"value", value, "beacon_id", *req.BeaconID)
			return
		}
		points = append(points, ObservationPoint{
			SiteID:          req.SiteID,
			ParameterID:     id,
			ObservationTime: observedAt,
			Value:           value,
			Source:          c.Source,
		})
	}

	if reading.WindSpeed != nil {
		emit(ParamWindSpeed, *reading.WindSpeed)
	}
	if reading.WindDirection != nil {
		emit(ParamWindDirection, *reading.WindDirection)
	}
	if reading.Temperature != nil {
		emit(ParamTemperature, *reading.Temperature)
	}
	return points
}

// beaconUserAgent is the polite identification sent to beacon pages,
// contact address included.
const beaconUserAgent = "windward-pipeline/1.0 (contact: ops@aleutian.ai)"
