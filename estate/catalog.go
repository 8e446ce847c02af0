// Package estate holds the demo property catalog served over the tool
// protocol: a fixed set of listings, the tools that query them and the
// resources that expose them in full.
package estate

import "strings"

// Listing is one property record. The set is fixed at startup and read-only
// for the process lifetime.
type Listing struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Price       int    `json:"price"`
	Bedrooms    int    `json:"bedrooms"`
	Bathrooms   int    `json:"bathrooms"`
	SquareFeet  int    `json:"squareFeet"`
	YearBuilt   int    `json:"yearBuilt"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Catalog is an immutable collection of listings with name lookup.
type Catalog struct {
	listings []Listing
	byName   map[string]int
}

// NewCatalog returns the built-in demo catalog.
func NewCatalog() *Catalog {
	return newCatalog(defaultListings)
}

func newCatalog(listings []Listing) *Catalog {
	c := &Catalog{
		listings: listings,
		byName:   make(map[string]int, len(listings)),
	}
	for i, l := range listings {
		c.byName[strings.ToLower(l.Name)] = i
	}
	return c
}

// Names returns every listing name in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.listings))
	for i, l := range c.listings {
		names[i] = l.Name
	}
	return names
}

// Listings returns a copy of all listings.
func (c *Catalog) Listings() []Listing {
	out := make([]Listing, len(c.listings))
	copy(out, c.listings)
	return out
}

// Lookup finds a listing by name, ignoring case.
func (c *Catalog) Lookup(name string) (Listing, bool) {
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Listing{}, false
	}
	return c.listings[i], true
}

// Slug turns a listing name into the path segment of its resource uri.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(s, " ", "-")
}

var defaultListings = []Listing{
	{
		Name:        "Willow Creek Cottage",
		Address:     "14 Riverbend Lane, Ashford",
		Price:       425000,
		Bedrooms:    3,
		Bathrooms:   2,
		SquareFeet:  1650,
		YearBuilt:   1987,
		Status:      "for sale",
		Description: "Renovated cottage on a quiet lane with a mature garden and a creek at the back of the lot.",
	},
	{
		Name:        "Harborview Penthouse",
		Address:     "901 Quay Street, Unit 22, Port Ellison",
		Price:       1250000,
		Bedrooms:    2,
		Bathrooms:   2,
		SquareFeet:  1400,
		YearBuilt:   2016,
		Status:      "for sale",
		Description: "Top-floor penthouse with floor-to-ceiling windows over the harbor and two parking spaces.",
	},
	{
		Name:        "Maple Hill Farmhouse",
		Address:     "3 Orchard Road, Maple Hill",
		Price:       689000,
		Bedrooms:    5,
		Bathrooms:   3,
		SquareFeet:  3100,
		YearBuilt:   1921,
		Status:      "under offer",
		Description: "Restored farmhouse on two acres with a barn, original oak floors and a wraparound porch.",
	},
	{
		Name:        "Birchwood Terrace",
		Address:     "58 Birchwood Terrace, Ashford",
		Price:       359000,
		Bedrooms:    3,
		Bathrooms:   1,
		SquareFeet:  1280,
		YearBuilt:   1962,
		Status:      "for sale",
		Description: "Mid-century terrace house close to schools, recently rewired with a new roof.",
	},
	{
		Name:        "The Old Granary",
		Address:     "1 Mill Lane, Netherford",
		Price:       540000,
		Bedrooms:    4,
		Bathrooms:   2,
		SquareFeet:  2200,
		YearBuilt:   1899,
		Status:      "sold",
		Description: "Converted granary with exposed beams, double-height living space and river views.",
	},
	{
		Name:        "Sundial Bungalow",
		Address:     "27 Sundial Close, Port Ellison",
		Price:       298000,
		Bedrooms:    2,
		Bathrooms:   1,
		SquareFeet:  980,
		YearBuilt:   1974,
		Status:      "for sale",
		Description: "Single-level bungalow with a south-facing patio, ideal first home or downsize.",
	},
}
