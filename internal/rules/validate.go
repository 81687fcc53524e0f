package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pagebuilder/internal/domain"
)

// MaxTemplateDepth is the deepest nesting a template may use.
const MaxTemplateDepth = 8

type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type ValidationResult struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues,omitempty"`
}

// Errors returns the issue messages in order.
func (r ValidationResult) Errors() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.Message
	}
	return out
}

var (
	viewportUnitRe = regexp.MustCompile(`\b(100vw|100vh)\b`)
	cropAspectRe   = regexp.MustCompile(`^\d+:\d+$`)
	rawColorRe     = regexp.MustCompile(`(?i)^(#|rgba?\(|hsla?\()`)

	sizeKeys   = deviceKeys("width", "height", "margin", "padding")
	marginKeys = deviceKeys("margin")
	heightKeys = deviceKeys("height")
	colorKeys  = []string{"color", "backgroundColor", "borderColor", "outlineColor", "fill", "stroke"}

	templateContainers = setOf(layoutContainers, specialContainers,
		[]domain.ComponentType{domain.TypeRepeater, domain.TypeBind})
)

func deviceKeys(bases ...string) []string {
	var out []string
	for _, b := range bases {
		out = append(out, b, b+"Desktop", b+"Tablet", b+"Mobile")
	}
	return out
}

type linter struct {
	issues    []Issue
	placement Placement
}

func (l *linter) add(path []string, format string, args ...any) {
	l.issues = append(l.issues, Issue{Path: strings.Join(path, "."), Message: fmt.Sprintf(format, args...)})
}

func at(path []string, more ...string) []string {
	out := make([]string, 0, len(path)+len(more))
	out = append(out, path...)
	return append(out, more...)
}

// ValidateTemplate lints a component forest before it is applied as a
// template. placement may be nil to skip nesting checks.
func ValidateTemplate(components []*domain.PageComponent, placement Placement) ValidationResult {
	l := &linter{placement: placement}
	for i, root := range components {
		path := []string{strconv.Itoa(i)}
		if root.StringProp("position") == "absolute" {
			l.add(at(path, "position"), "Root component '%s' should not use absolute positioning in templates.", root.Type)
		}
		l.checkViewportUnits(root, path)
		l.checkAbsolute(root, false, path)
		if depth := domain.Depth(root); depth > MaxTemplateDepth {
			l.add(path, "Template nesting depth exceeds %d levels.", MaxTemplateDepth)
		}
		l.walk(root, path)
	}
	return ValidationResult{OK: len(l.issues) == 0, Issues: l.issues}
}

func childPath(path []string, i int) []string {
	return at(path, "children", strconv.Itoa(i))
}

// checkViewportUnits reports the first hazardous viewport unit in the tree.
func (l *linter) checkViewportUnits(root *domain.PageComponent, path []string) bool {
	for _, k := range sizeKeys {
		if s, ok := root.Props[k].(string); ok && viewportUnitRe.MatchString(s) {
			l.add(at(path, k), "Component '%s' uses disallowed viewport unit in '%s'. Avoid 100vw/100vh.", root.Type, k)
			return true
		}
	}
	for i, c := range root.Children {
		if l.checkViewportUnits(c, childPath(path, i)) {
			return true
		}
	}
	return false
}

func (l *linter) checkAbsolute(n *domain.PageComponent, positionedAncestor bool, path []string) {
	pos := n.StringProp("position")
	if pos == "absolute" && !positionedAncestor {
		l.add(at(path, "position"), "Absolute-positioned components must have a positioned (relative/sticky) ancestor in the template.")
	}
	next := positionedAncestor || pos == "relative" || pos == "sticky"
	for i, c := range n.Children {
		l.checkAbsolute(c, next, childPath(path, i))
	}
}

func (l *linter) walk(n *domain.PageComponent, path []string) {
	l.checkNode(n, path)
	for i, c := range n.Children {
		if l.placement != nil && !l.placement.CanDropChild(n.Type, c.Type) {
			l.add(childPath(path, i), "'%s' cannot be placed inside '%s'.", c.Type, n.Type)
		}
		l.walk(c, childPath(path, i))
	}
}

func (l *linter) checkNode(n *domain.PageComponent, path []string) {
	switch n.Type {
	case domain.TypeImage:
		aspect := strings.TrimSpace(n.StringProp("cropAspect"))
		if aspect == "" {
			l.add(at(path, "cropAspect"), "Image components should specify 'cropAspect' to enforce aspect ratio.")
		} else if !cropAspectRe.MatchString(aspect) {
			l.add(at(path, "cropAspect"), "Image 'cropAspect' should be in 'W:H' format like '16:9' or '4:3'.")
		}
		if strings.TrimSpace(n.StringProp("alt")) == "" {
			l.add(at(path, "alt"), "Image components should include non-empty 'alt' text.")
		}
	case domain.TypeText:
		for _, k := range heightKeys {
			if s, ok := n.Props[k].(string); ok && strings.TrimSpace(s) != "" {
				l.add(at(path, k), "Text components should not set '%s' (can cause clipping).", k)
				break
			}
		}
	case domain.TypeButton:
		if px, ok := pixels(n.StringProp("height")); ok && px < 40 {
			l.add(at(path, "height"), "Button 'height' should be at least 40px for tap size.")
		}
	case domain.TypeImageSlider:
		if slides, ok := n.Props["slides"].([]any); ok {
			min := 2
			if m, ok := n.NumberProp("minItems"); ok {
				min = int(m)
			}
			if len(slides) < min {
				l.add(at(path, "slides"), "ImageSlider requires at least %d slides.", min)
			}
		}
	case domain.TypeReviews:
		l.minList(n, path, "reviews", "ReviewsCarousel requires at least 2 reviews.")
	case domain.TypeTestimonials:
		l.minList(n, path, "testimonials", "TestimonialSlider requires at least 2 entries.")
	case domain.TypeGallery:
		l.minList(n, path, "images", "Gallery requires at least 2 images.")
	case domain.TypeProductCarousel:
		switch n.StringProp("mode") {
		case "manual":
			if skus, ok := n.Props["skus"].([]any); !ok || len(skus) < 2 {
				l.add(at(path, "skus"), "ProductCarousel (manual) requires at least 2 SKUs.")
			}
		case "collection":
			if strings.TrimSpace(n.StringProp("collectionId")) == "" {
				l.add(at(path, "collectionId"), "ProductCarousel (collection) requires 'collectionId'.")
			}
		}
	}

	if sticky := n.StringProp("sticky"); sticky != "" {
		if v, ok := n.Props["stickyOffset"]; !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
			l.add(at(path, "stickyOffset"), "When 'sticky' is set, 'stickyOffset' is required.")
		}
	}

	switch n.StringProp("clickAction") {
	case "navigate":
		if strings.TrimSpace(n.StringProp("href")) == "" {
			l.add(at(path, "href"), "clickAction 'navigate' requires 'href'.")
		}
	case "open-modal":
		if strings.TrimSpace(n.StringProp("modalHtml")) == "" {
			l.add(at(path, "modalHtml"), "clickAction 'open-modal' requires 'modalHtml'.")
		}
	}

	minItems, hasMin := n.NumberProp("minItems")
	maxItems, hasMax := n.NumberProp("maxItems")
	if hasMin && hasMax && minItems > maxItems {
		l.add(at(path, "minItems"), "minItems cannot be greater than maxItems.")
	}
	for _, k := range []string{"desktopItems", "tabletItems", "mobileItems"} {
		v, ok := n.NumberProp(k)
		if !ok {
			continue
		}
		if hasMin && v < minItems {
			l.add(at(path, k), "%s must be ≥ minItems.", k)
		}
		if hasMax && v > maxItems {
			l.add(at(path, k), "%s must be ≤ maxItems.", k)
		}
	}

	if anim := n.StringProp("animation"); anim != "" && anim != "none" {
		if d, ok := n.NumberProp("animationDuration"); !ok || d <= 0 {
			l.add(at(path, "animationDuration"), "When 'animation' is set, a positive 'animationDuration' is required.")
		}
	}

	if p, ok := n.NumberProp("parallax"); ok && (p <= 0 || p > 1) {
		l.add(at(path, "parallax"), "'parallax' should be > 0 and ≤ 1.")
	}

	if _, ok := n.NumberProp("zIndex"); ok {
		switch n.StringProp("position") {
		case "relative", "absolute", "sticky":
		default:
			l.add(at(path, "zIndex"), "'zIndex' requires a positioned element (relative/absolute/sticky).")
		}
	}

	for _, k := range marginKeys {
		if s, ok := n.Props[k].(string); ok && strings.HasPrefix(strings.TrimSpace(s), "-") {
			l.add(at(path, k), "Negative margins are not allowed ('%s').", k)
			break
		}
	}

	for _, k := range colorKeys {
		if isRawColor(n.Props[k]) {
			l.add(at(path, k), "Use design tokens (CSS var) instead of raw color in '%s'.", k)
		}
	}

	if len(n.Children) > 0 {
		if _, ok := templateContainers[n.Type]; !ok {
			l.add(at(path, "children"), "Component '%s' cannot have children; only containers may own children.", n.Type)
		}
	}
}

func (l *linter) minList(n *domain.PageComponent, path []string, key, msg string) {
	if items, ok := n.Props[key].([]any); ok && len(items) < 2 {
		l.add(at(path, key), "%s", msg)
	}
}

func isRawColor(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	return s != "" && rawColorRe.MatchString(s)
}

// pixels parses a plain "<number>px" value.
func pixels(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "px") {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "px"), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
