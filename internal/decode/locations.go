package decode

import (
	"strings"

	"github.com/susu3304/netbank/internal/geo"
	"github.com/tidwall/gjson"
)

const (
	TypeATM    = "ATM"
	TypeBranch = "Branch"
)

// Location is a branch or ATM returned by the locator.
//
// Layout ('#'): [0]=name [1]=address [2]="lat,lng" [3]=type code ("a" is an ATM) [4]=phone [5]=id
// [6]=opening time [7]=closing time [12]=distance in km. Every free-text field is URL-encoded.
type Location struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Position  *geo.Point `json:"position,omitempty"`
	Type      string     `json:"type"`
	Phone     string     `json:"phone"`
	OpenTime  string     `json:"openTime"`
	CloseTime string     `json:"closeTime"`
	Distance  float64    `json:"distance"`
}

// LocateResult pairs the locator's envelope status with its decoded locations.
type LocateResult struct {
	Success   bool       `json:"success"`
	Locations []Location `json:"locations"`
}

// Locations decodes a locator payload. When the backend left the distance blank and origin is
// known, the great-circle distance from origin is filled in.
func Locations(raw string, origin *geo.Point) []Location {
	return guard("locations", raw, func() []Location {
		var out []Location
		for _, p := range records(raw, hashSep) {
			loc := Location{
				ID:        text(p, 5),
				Name:      text(p, 0),
				Address:   text(p, 1),
				Type:      TypeBranch,
				Phone:     text(p, 4),
				OpenTime:  text(p, 6),
				CloseTime: text(p, 7),
			}
			if strings.EqualFold(field(p, 3), "a") {
				loc.Type = TypeATM
			}
			if pt, ok := geo.ParseLatLng(text(p, 2)); ok {
				loc.Position = &pt
			}
			if d := field(p, 12); d != "" {
				loc.Distance = number(d)
			} else if origin != nil && loc.Position != nil {
				loc.Distance = geo.DistanceKm(*origin, *loc.Position)
			}
			out = append(out, loc)
		}
		return out
	})
}

// Locate decodes a whole locator reply.
func Locate(env gjson.Result, origin *geo.Point) LocateResult {
	return LocateResult{
		Success:   Succeeded(env),
		Locations: Locations(Field(env, FieldLocations), origin),
	}
}
