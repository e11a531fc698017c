package model

// DistrictShape is a zoning district boundary geometry, stored as WKB
// (SRID 4326). Shapes are loaded from municipal GIS shapefiles and used to
// resolve a parcel point to its governing district.
type DistrictShape struct {
	JurisdictionID string `json:"jurisdiction_id"`
	DistrictCode   string `json:"district_code"`
	WKB            []byte `json:"-"`
}
