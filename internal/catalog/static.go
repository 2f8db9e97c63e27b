package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/smilequote/internal/money"
)

// Static is an immutable in-memory catalog.
type Static struct {
	treatments []Treatment
	packages   []Package
	addOns     []AddOn
	index      map[Kind]map[string]Entry
}

// NewStatic validates and indexes the provided items. Duplicate ids within a
// kind and non-positive prices are rejected.
func NewStatic(treatments []Treatment, packages []Package, addOns []AddOn) (*Static, error) {
	s := &Static{
		treatments: append([]Treatment(nil), treatments...),
		packages:   clonePackages(packages),
		addOns:     append([]AddOn(nil), addOns...),
		index: map[Kind]map[string]Entry{
			KindTreatment: {},
			KindPackage:   {},
			KindAddOn:     {},
		},
	}
	for _, t := range s.treatments {
		if err := s.put(treatmentEntry(t)); err != nil {
			return nil, err
		}
	}
	for _, p := range s.packages {
		for _, it := range p.Included {
			if _, ok := s.index[KindTreatment][it.TreatmentID]; !ok {
				return nil, fmt.Errorf("%w: package %q includes unknown treatment %q", ErrInvalidItem, p.ID, it.TreatmentID)
			}
			if it.Quantity < 1 {
				return nil, fmt.Errorf("%w: package %q has quantity %d for %q", ErrInvalidItem, p.ID, it.Quantity, it.TreatmentID)
			}
		}
		if err := s.put(packageEntry(p)); err != nil {
			return nil, err
		}
	}
	for _, a := range s.addOns {
		if err := s.put(addOnEntry(a)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustStatic is NewStatic that panics on invalid seed data.
func MustStatic(treatments []Treatment, packages []Package, addOns []AddOn) *Static {
	s, err := NewStatic(treatments, packages, addOns)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Static) put(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, dup := s.index[e.Kind][e.ID]; dup {
		return fmt.Errorf("%w: duplicate %s %q", ErrInvalidItem, e.Kind, e.ID)
	}
	s.index[e.Kind][e.ID] = e
	return nil
}

// Get implements Lookup.
func (s *Static) Get(_ context.Context, kind Kind, id string) (Entry, error) {
	byID, ok := s.index[kind]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	e, ok := byID[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, notFound(kind, id)
	}
	return e, nil
}

// Treatments implements Lister.
func (s *Static) Treatments(context.Context) ([]Treatment, error) {
	return append([]Treatment(nil), s.treatments...), nil
}

// Packages implements Lister.
func (s *Static) Packages(context.Context) ([]Package, error) {
	return clonePackages(s.packages), nil
}

// AddOns implements Lister.
func (s *Static) AddOns(context.Context) ([]AddOn, error) {
	return append([]AddOn(nil), s.addOns...), nil
}

func clonePackages(in []Package) []Package {
	out := make([]Package, len(in))
	for i, p := range in {
		p.Included = append([]PackageItem(nil), p.Included...)
		out[i] = p
	}
	return out
}

// DefaultCatalog returns the seeded clinic catalog used for local development and tests.
func DefaultCatalog() *Static {
	usd := money.FromMajor
	treatments := []Treatment{
		{ID: "dental-implant", Name: "Dental Implant", Description: "Titanium implant post with abutment", UnitPrice: usd(700), Category: CategoryImplants},
		{ID: "all-on-4", Name: "All-on-4 Full Arch", Description: "Full arch restoration on four implants", UnitPrice: usd(5500), Category: CategoryImplants},
		{ID: "porcelain-crown", Name: "Porcelain Crown", Description: "Porcelain fused to metal crown", UnitPrice: usd(300), Category: CategoryCrowns},
		{ID: "zirconia-crown", Name: "Zirconia Crown", Description: "Monolithic zirconia crown", UnitPrice: usd(380), Category: CategoryCrowns},
		{ID: "porcelain-veneer", Name: "Porcelain Veneer", Description: "E.max porcelain veneer per tooth", UnitPrice: usd(450), Category: CategoryVeneers},
		{ID: "composite-veneer", Name: "Composite Veneer", Description: "Direct composite veneer per tooth", UnitPrice: usd(180), Category: CategoryVeneers},
		{ID: "teeth-whitening", Name: "Professional Teeth Whitening", Description: "In-clinic laser whitening session", UnitPrice: usd(250), Category: CategoryWhitening},
		{ID: "clear-aligners", Name: "Clear Aligners", Description: "Full clear aligner course", UnitPrice: usd(2200), Category: CategoryOrthodontics},
		{ID: "dental-consultation", Name: "Dental Consultation", Description: "Examination and treatment plan", UnitPrice: usd(100), Category: CategoryGeneral},
		{ID: "root-canal", Name: "Root Canal Treatment", Description: "Single canal endodontic treatment", UnitPrice: usd(350), Category: CategoryGeneral},
		{ID: "wisdom-tooth-extraction", Name: "Wisdom Tooth Extraction", Description: "Surgical extraction per tooth", UnitPrice: usd(180), Category: CategorySurgery},
		{ID: "bone-graft", Name: "Bone Graft", Description: "Graft to support implant placement", UnitPrice: usd(400), Category: CategorySurgery},
	}
	packages := []Package{
		{
			ID:          "implant-crown-bundle",
			Name:        "Implant and Crown Bundle",
			Description: "One implant with a porcelain crown",
			Included: []PackageItem{
				{TreatmentID: "dental-implant", Quantity: 1, StandardUnitPrice: usd(700)},
				{TreatmentID: "porcelain-crown", Quantity: 1, StandardUnitPrice: usd(300)},
			},
			PackagePrice: usd(900),
		},
		{
			ID:          "smile-makeover",
			Name:        "Smile Makeover",
			Description: "Eight porcelain veneers with whitening",
			Included: []PackageItem{
				{TreatmentID: "porcelain-veneer", Quantity: 8, StandardUnitPrice: usd(450)},
				{TreatmentID: "teeth-whitening", Quantity: 1, StandardUnitPrice: usd(250)},
			},
			PackagePrice: usd(3200),
		},
		{
			ID:          "hollywood-smile",
			Name:        "Hollywood Smile",
			Description: "Ten veneers, whitening and consultation",
			Included: []PackageItem{
				{TreatmentID: "porcelain-veneer", Quantity: 10, StandardUnitPrice: usd(450)},
				{TreatmentID: "teeth-whitening", Quantity: 1, StandardUnitPrice: usd(250)},
				{TreatmentID: "dental-consultation", Quantity: 1, StandardUnitPrice: usd(100)},
			},
			PackagePrice: usd(4100),
		},
	}
	addOns := []AddOn{
		{ID: "airport-transfer", Name: "Airport Transfer", Description: "Return airport pickup", UnitPrice: usd(80)},
		{ID: "hotel-3-nights", Name: "Hotel Stay (3 nights)", Description: "Four-star hotel near the clinic", UnitPrice: usd(270)},
		{ID: "city-tour", Name: "City Tour", Description: "Half-day guided tour", UnitPrice: usd(60)},
		{ID: "travel-insurance", Name: "Treatment Travel Insurance", Description: "Cover for complications abroad", UnitPrice: usd(45)},
	}
	return MustStatic(treatments, packages, addOns)
}
