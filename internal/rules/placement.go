package rules

import (
	"sort"

	"pagebuilder/internal/domain"
)

// ParentKind is a container type, or Root for the page root.
type ParentKind = domain.ComponentType

const Root ParentKind = "ROOT"

// Placement answers nesting questions. Implementations must be evaluated on
// every call; results are never cached by callers.
type Placement interface {
	CanDropChild(parent ParentKind, child domain.ComponentType) bool
}

type typeSet map[domain.ComponentType]struct{}

func setOf(groups ...[]domain.ComponentType) typeSet {
	s := typeSet{}
	for _, g := range groups {
		for _, t := range g {
			s[t] = struct{}{}
		}
	}
	return s
}

var (
	layoutContainers = []domain.ComponentType{
		domain.TypeSection, domain.TypeCanvas, domain.TypeMultiColumn,
		domain.TypeStackFlex, domain.TypeGrid,
	}
	innerLayouts = []domain.ComponentType{
		domain.TypeStackFlex, domain.TypeGrid, domain.TypeMultiColumn,
	}
	specialContainers = []domain.ComponentType{
		domain.TypeCarouselContainer, domain.TypeTabsAccordionContainer,
		domain.TypeTabs, domain.TypeDataset,
	}
	pageChrome = []domain.ComponentType{
		domain.TypeHeader, domain.TypeFooter,
	}
	organisms = []domain.ComponentType{
		domain.TypeHeroBanner, domain.TypeProductGrid, domain.TypeProductCarousel,
		domain.TypeImageSlider, domain.TypeGallery, domain.TypeReviews,
		domain.TypeTestimonials, domain.TypeContactForm, domain.TypeNewsletter,
	}
	atoms = []domain.ComponentType{
		domain.TypeText, domain.TypeImage, domain.TypeButton, domain.TypeDivider,
		domain.TypeSpacer, domain.TypeVideo, domain.TypeCustom,
	}
	bindable = []domain.ComponentType{
		domain.TypeText, domain.TypeImage, domain.TypeButton,
	}
)

// Table is a static adjacency table from parent kind to permitted children.
type Table struct {
	children map[ParentKind]typeSet
}

// DefaultTable returns the built-in placement table.
func DefaultTable() *Table {
	return &Table{children: map[ParentKind]typeSet{
		Root:                              setOf(layoutContainers, specialContainers, pageChrome, organisms),
		domain.TypeSection:                setOf(layoutContainers, specialContainers, organisms, atoms),
		domain.TypeCanvas:                 setOf(atoms, []domain.ComponentType{domain.TypeStackFlex}),
		domain.TypeMultiColumn:            setOf(atoms, innerLayouts, specialContainers, organisms),
		domain.TypeStackFlex:              setOf(atoms, innerLayouts, specialContainers, organisms),
		domain.TypeGrid:                   setOf(atoms, innerLayouts, organisms),
		domain.TypeCarouselContainer:      setOf(atoms, []domain.ComponentType{domain.TypeStackFlex, domain.TypeGrid}),
		domain.TypeTabs:                   setOf(atoms, innerLayouts, organisms),
		domain.TypeTabsAccordionContainer: setOf(atoms, innerLayouts, organisms),
		domain.TypeDataset:                setOf([]domain.ComponentType{domain.TypeRepeater, domain.TypeBind}),
		domain.TypeRepeater:               setOf(bindable, []domain.ComponentType{domain.TypeStackFlex, domain.TypeBind}),
		domain.TypeBind:                   setOf(bindable),
	}}
}

// Allow adds child types to parent's permitted set.
func (t *Table) Allow(parent ParentKind, children ...domain.ComponentType) {
	s, ok := t.children[parent]
	if !ok {
		s = typeSet{}
		t.children[parent] = s
	}
	for _, c := range children {
		s[c] = struct{}{}
	}
}

func (t *Table) CanDropChild(parent ParentKind, child domain.ComponentType) bool {
	s, ok := t.children[parent]
	if !ok {
		return false
	}
	_, ok = s[child]
	return ok
}

// AllowedChildren returns the permitted child types of parent, sorted.
func (t *Table) AllowedChildren(parent ParentKind) []domain.ComponentType {
	s := t.children[parent]
	out := make([]domain.ComponentType, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Table) IsTopLevelAllowed(child domain.ComponentType) bool {
	return t.CanDropChild(Root, child)
}

var defaultTable = DefaultTable()

func CanDropChild(parent ParentKind, child domain.ComponentType) bool {
	return defaultTable.CanDropChild(parent, child)
}

func AllowedChildren(parent ParentKind) []domain.ComponentType {
	return defaultTable.AllowedChildren(parent)
}

func IsTopLevelAllowed(child domain.ComponentType) bool {
	return defaultTable.IsTopLevelAllowed(child)
}

// KindOf returns the parent kind for a node, Root for nil.
func KindOf(parent *domain.PageComponent) ParentKind {
	if parent == nil {
		return Root
	}
	return parent.Type
}
