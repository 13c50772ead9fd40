// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Minimal GRIB2 decoder covering what the gridded model exports use:
// edition 2, regular lat/lon grids (grid template 3.0), analysis or
// forecast products (product template 4.0), simple packing (data
// template 5.0), no bitmap. Anything else is rejected with a clear
// error rather than silently misread.

var errNotGRIB2 = errors.New("not a GRIB2 message")

// gribGrid describes a regular lat/lon grid. Latitudes and longitudes
// are decimal degrees; longitudes are kept in [0, 360) as encoded.
type gribGrid struct {
	Ni, Nj     int
	Lat1, Lon1 float64
	Lat2, Lon2 float64
	Di, Dj     float64
	// RowsSouthward is true when consecutive rows run north to south
	// (scanning mode j bit unset).
	RowsSouthward bool
}

// gribField is one decoded message: a parameter on a grid at one valid
// time.
type gribField struct {
	Discipline uint8
	Category   uint8
	Number     uint8
	RefTime    time.Time
	ValidTime  time.Time
	Grid       gribGrid
	Values     []float64
}

// paramName maps the (discipline, category, number) triple to the
// pipeline's parameter vocabulary. Unknown triples return "".
func (f *gribField) paramName() string {
	if f.Discipline != 0 {
		return ""
	}
	switch {
	case f.Category == 2 && f.Number == 2:
		return "wind_u"
	case f.Category == 2 && f.Number == 3:
		return "wind_v"
	case f.Category == 0 && f.Number == 0:
		return "temperature"
	}
	return ""
}

// parseGRIB2 decodes every message in a GRIB2 file. The framing
// (indicator magic, edition, message length) must be sound; a message
// whose body fails to decode is reported in skipped and the walk
// resumes at the next message, so one bad time step never costs the
// whole file.
func parseGRIB2(data []byte) (fields []gribField, skipped []error, err error) {
	msgIndex := 0
	for len(data) > 0 {
		if len(data) < 16 {
			return nil, nil, fmt.Errorf("%w: truncated indicator section", errNotGRIB2)
		}
		if string(data[0:4]) != "GRIB" {
			return nil, nil, errNotGRIB2
		}
		if data[7] != 2 {
			return nil, nil, fmt.Errorf("%w: edition %d", errNotGRIB2, data[7])
		}
		msgLen := binary.BigEndian.Uint64(data[8:16])
		if msgLen < 16 || msgLen > uint64(len(data)) {
			return nil, nil, fmt.Errorf("grib2: message length %d exceeds input", msgLen)
		}

		field, msgErr := parseMessage(data[:msgLen])
		if msgErr != nil {
			skipped = append(skipped, fmt.Errorf("message %d: %w", msgIndex, msgErr))
		} else {
			field.Discipline = data[6]
			fields = append(fields, field)
		}
		data = data[msgLen:]
		msgIndex++
	}
	return fields, skipped, nil
}

// parseMessage walks the sections of one message. Sections 2 (local
// use) and a repeated 4..7 block are tolerated; only the last data
// section of a message is kept, which matches single-field exports.
func parseMessage(msg []byte) (gribField, error) {
	var (
		field     gribField
		packing   gribPacking
		havePack  bool
		haveGrid  bool
		rawValues []byte
	)

	body := msg[16:]
	for len(body) > 0 {
		if len(body) == 4 && string(body) == "7777" {
			break
		}
		if len(body) < 5 {
			return field, errors.New("grib2: truncated section header")
		}
		secLen := int(binary.BigEndian.Uint32(body[0:4]))
		secNum := body[4]
		if secLen < 5 || secLen > len(body) {
			return field, fmt.Errorf("grib2: section %d length %d out of bounds", secNum, secLen)
		}
		sec := body[:secLen]

		var err error
		switch secNum {
		case 1:
			field.RefTime, err = parseIdentification(sec)
		case 3:
			field.Grid, err = parseGridDefinition(sec)
			haveGrid = err == nil
		case 4:
			var lead time.Duration
			field.Category, field.Number, lead, err = parseProductDefinition(sec)
			if err == nil {
				field.ValidTime = field.RefTime.Add(lead)
			}
		case 5:
			packing, err = parseDataRepresentation(sec)
			havePack = err == nil
		case 6:
			if sec[5] != 255 {
				err = errors.New("grib2: bitmaps are not supported")
			}
		case 7:
			rawValues = sec[5:]
		}
		if err != nil {
			return field, err
		}
		body = body[secLen:]
	}

	if !haveGrid || !havePack || rawValues == nil {
		return field, errors.New("grib2: incomplete message")
	}

	n := field.Grid.Ni * field.Grid.Nj
	values, err := unpackSimple(rawValues, packing, n)
	if err != nil {
		return field, err
	}
	field.Values = values
	return field, nil
}

func parseIdentification(sec []byte) (time.Time, error) {
	if len(sec) < 19 {
		return time.Time{}, errors.New("grib2: short identification section")
	}
	year := int(binary.BigEndian.Uint16(sec[12:14]))
	return time.Date(year, time.Month(sec[14]), int(sec[15]),
		int(sec[16]), int(sec[17]), int(sec[18]), 0, time.UTC), nil
}

func parseGridDefinition(sec []byte) (gribGrid, error) {
	var g gribGrid
	if len(sec) < 72 {
		return g, errors.New("grib2: short grid definition section")
	}
	template := binary.BigEndian.Uint16(sec[12:14])
	if template != 0 {
		return g, fmt.Errorf("grib2: unsupported grid template 3.%d", template)
	}

	g.Ni = int(binary.BigEndian.Uint32(sec[30:34]))
	g.Nj = int(binary.BigEndian.Uint32(sec[34:38]))
	if g.Ni <= 0 || g.Nj <= 0 {
		return g, fmt.Errorf("grib2: degenerate grid %dx%d", g.Ni, g.Nj)
	}
	g.Lat1 = microDegrees(sec[46:50])
	g.Lon1 = microDegrees(sec[50:54])
	g.Lat2 = microDegrees(sec[55:59])
	g.Lon2 = microDegrees(sec[59:63])
	g.Di = float64(binary.BigEndian.Uint32(sec[63:67])) / 1e6
	g.Dj = float64(binary.BigEndian.Uint32(sec[67:71])) / 1e6
	scan := sec[71]
	g.RowsSouthward = scan&0x40 == 0
	if scan&0x80 != 0 {
		return g, errors.New("grib2: negative i scanning is not supported")
	}
	return g, nil
}

func parseProductDefinition(sec []byte) (category, number uint8, lead time.Duration, err error) {
	if len(sec) < 22 {
		return 0, 0, 0, errors.New("grib2: short product definition section")
	}
	template := binary.BigEndian.Uint16(sec[7:9])
	// 4.0 is the instantaneous forecast template; 4.1 adds ensemble
	// info ahead of identical leading octets.
	if template != 0 && template != 1 {
		return 0, 0, 0, fmt.Errorf("grib2: unsupported product template 4.%d", template)
	}
	category = sec[9]
	number = sec[10]

	forecast := int64(binary.BigEndian.Uint32(sec[18:22]))
	switch sec[17] {
	case 0:
		lead = time.Duration(forecast) * time.Minute
	case 1:
		lead = time.Duration(forecast) * time.Hour
	case 2:
		lead = time.Duration(forecast) * 24 * time.Hour
	default:
		return 0, 0, 0, fmt.Errorf("grib2: unsupported time unit %d", sec[17])
	}
	return category, number, lead, nil
}

// gribPacking holds the simple-packing parameters of template 5.0.
type gribPacking struct {
	Reference    float64
	BinaryScale  int
	DecimalScale int
	Bits         int
}

func parseDataRepresentation(sec []byte) (gribPacking, error) {
	var p gribPacking
	if len(sec) < 21 {
		return p, errors.New("grib2: short data representation section")
	}
	template := binary.BigEndian.Uint16(sec[9:11])
	if template != 0 {
		return p, fmt.Errorf("grib2: unsupported packing template 5.%d", template)
	}
	p.Reference = float64(math.Float32frombits(binary.BigEndian.Uint32(sec[11:15])))
	p.BinaryScale = signMagnitude16(sec[15:17])
	p.DecimalScale = signMagnitude16(sec[17:19])
	p.Bits = int(sec[19])
	return p, nil
}

// unpackSimple expands a simple-packed bitstream into n values using
// value = (R + X * 2^E) / 10^D.
func unpackSimple(raw []byte, p gribPacking, n int) ([]float64, error) {
	values := make([]float64, n)
	scale := math.Pow(2, float64(p.BinaryScale)) / math.Pow(10, float64(p.DecimalScale))
	ref := p.Reference / math.Pow(10, float64(p.DecimalScale))

	if p.Bits == 0 {
		// Constant field: every point equals the reference value.
		for i := range values {
			values[i] = ref
		}
		return values, nil
	}
	if p.Bits > 32 {
		return nil, fmt.Errorf("grib2: %d bits per value is not supported", p.Bits)
	}
	if len(raw)*8 < n*p.Bits {
		return nil, fmt.Errorf("grib2: data section holds %d bits, need %d", len(raw)*8, n*p.Bits)
	}

	bitPos := 0
	for i := 0; i < n; i++ {
		var x uint64
		for b := 0; b < p.Bits; b++ {
			byteIdx := bitPos >> 3
			bit := (raw[byteIdx] >> (7 - uint(bitPos&7))) & 1
			x = x<<1 | uint64(bit)
			bitPos++
		}
		values[i] = ref + float64(x)*scale
	}
	return values, nil
}

// microDegrees decodes a GRIB2 signed integer (sign bit + magnitude)
// scaled by 1e-6.
func microDegrees(b []byte) float64 {
	v := binary.BigEndian.Uint32(b)
	sign := 1.0
	if v&0x80000000 != 0 {
		sign = -1.0
		v &^= 0x80000000
	}
	return sign * float64(v) / 1e6
}

func signMagnitude16(b []byte) int {
	v := binary.BigEndian.Uint16(b)
	if v&0x8000 != 0 {
		return -int(v &^ 0x8000)
	}
	return int(v)
}

// valueAt bilinearly interpolates the field at (lat, lon). Requests
// outside the grid bounding box return an error; the grid is small and
// extrapolation would silently fabricate data.
func (f *gribField) valueAt(lat, lon float64) (float64, error) {
	g := f.Grid

	// Column offset modulo 360 so grids crossing the prime meridian
	// (Lon1 near 360, Lon2 small) still address points east of 0°.
	delta := math.Mod(normalizeDegrees(lon)-normalizeDegrees(g.Lon1)+360, 360)
	if delta > 360-1e-6 {
		// Float noise west of the first column wraps to just under a
		// full turn; that is the west edge, not a point east of it.
		delta = 0
	}
	col := delta / g.Di
	var row float64
	if g.RowsSouthward {
		row = (g.Lat1 - lat) / g.Dj
	} else {
		row = (lat - g.Lat1) / g.Dj
	}

	const eps = 1e-9
	if col < -eps || col > float64(g.Ni-1)+eps || row < -eps || row > float64(g.Nj-1)+eps {
		return 0, fmt.Errorf("grib2: point (%.4f, %.4f) outside grid", lat, lon)
	}
	col = math.Min(math.Max(col, 0), float64(g.Ni-1))
	row = math.Min(math.Max(row, 0), float64(g.Nj-1))

	c0 := int(math.Floor(col))
	r0 := int(math.Floor(row))
	c1 := min(c0+1, g.Ni-1)
	r1 := min(r0+1, g.Nj-1)
	fc := col - float64(c0)
	fr := row - float64(r0)

	at := func(r, c int) float64 { return f.Values[r*g.Ni+c] }
	top := at(r0, c0)*(1-fc) + at(r0, c1)*fc
	bottom := at(r1, c0)*(1-fc) + at(r1, c1)*fc
	return top*(1-fr) + bottom*fr, nil
}
