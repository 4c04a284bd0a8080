package geo

import (
	"context"
	"math"
	"strings"
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Geocoder resolves a free-text location name to coordinates.
// Implementations return ok=false when the name is unknown; transport or
// quota failures come back as an error.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (Coordinates, bool, error)
}

// Normalize canonicalizes a location name for lookups and cache keys.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b Coordinates) float64 {
	const earthRadiusKm = 6371

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusKm * 2 * math.Asin(math.Sqrt(h))
}

// StaticGeocoder resolves from a fixed in-memory table. It is the
// default collaborator for deployments that restrict signup to a known
// set of launch cities.
type StaticGeocoder struct {
	cities map[string]Coordinates
}

// NewStaticGeocoder returns a geocoder over the built-in launch cities.
func NewStaticGeocoder() *StaticGeocoder {
	return &StaticGeocoder{cities: launchCities}
}

func (g *StaticGeocoder) Geocode(ctx context.Context, name string) (Coordinates, bool, error) {
	c, ok := g.cities[Normalize(name)]
	return c, ok, nil
}

// Known returns whether a name resolves without performing a lookup.
func (g *StaticGeocoder) Known(name string) bool {
	_, ok := g.cities[Normalize(name)]
	return ok
}

// launchCities covers the tier 1-3 launch cities.
var launchCities = map[string]Coordinates{
	"bengaluru":     {12.9716, 77.5946},
	"mumbai":        {19.0760, 72.8777},
	"delhi":         {28.7041, 77.1025},
	"hyderabad":     {17.3850, 78.4867},
	"chennai":       {13.0827, 80.2707},
	"kolkata":       {22.5726, 88.3639},
	"pune":          {18.5204, 73.8567},
	"ahmedabad":     {23.0225, 72.5714},
	"jaipur":        {26.9124, 75.7873},
	"chandigarh":    {30.7333, 76.7794},
	"indore":        {22.7196, 75.8577},
	"bhopal":        {23.1815, 79.9864},
	"coimbatore":    {11.0066, 76.9485},
	"kochi":         {9.9312, 76.2673},
	"trivandrum":    {8.5241, 76.9366},
	"trichy":        {10.7905, 78.7047},
	"madurai":       {9.9252, 78.1198},
	"salem":         {11.6643, 78.1460},
	"tirunelveli":   {8.7139, 77.7567},
	"visakhapatnam": {17.6869, 83.2185},
	"vijayawada":    {16.5062, 80.6480},
	"guntur":        {16.3067, 80.4365},
	"nellore":       {14.4426, 79.9864},
	"rajahmundry":   {16.9891, 81.7744},
	"warangal":      {17.9689, 79.5941},
	"nagpur":        {21.1458, 79.0882},
	"nashik":        {19.9975, 73.7898},
	"aurangabad":    {19.8762, 75.3433},
	"kolhapur":      {16.7050, 73.7421},
	"udaipur":       {24.5854, 73.7125},
	"jodhpur":       {26.2389, 73.0243},
	"kota":          {25.2138, 75.8648},
	"ajmer":         {26.4499, 74.6399},
	"dehradun":      {30.1975, 78.1348},
	"haridwar":      {29.9457, 78.1642},
	"roorkee":       {29.8680, 77.8971},
	"ludhiana":      {30.9010, 75.8573},
	"amritsar":      {31.6340, 74.8723},
	"jalandhar":     {31.7260, 75.5762},
	"patiala":       {30.3398, 76.3869},
	"mohali":        {30.6394, 76.8216},
	"panipat":       {29.3910, 77.2863},
	"karnal":        {29.6200, 77.1040},
	"hisar":         {29.1724, 75.7339},
	"rohtak":        {28.8955, 77.0413},
	"alwar":         {27.5330, 75.6245},
	"mysuru":        {12.2958, 76.6394},
	"hubballi":      {15.3647, 75.1240},
	"belagavi":      {15.8497, 74.4977},
	"mangalore":     {12.8628, 74.8430},
	"shimla":        {31.7724, 77.1025},
	"srinagar":      {34.0837, 74.7973},
	"guwahati":      {26.1445, 91.7362},
	"ranchi":        {23.3441, 85.3096},
	"patna":         {25.5941, 85.1376},
	"varanasi":      {25.3176, 82.9739},
	"lucknow":       {26.8467, 80.9462},
	"kanpur":        {26.4499, 80.3319},
	"agra":          {27.1767, 78.0081},
	"meerut":        {28.9845, 77.7064},
	"noida":         {28.5355, 77.3910},
	"ghaziabad":     {28.6692, 77.4538},
}
