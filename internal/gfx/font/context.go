// internal/gfx/font/context.go
package font

// layoutCacheEntry records the outcome of resolving one family, including the
// negative outcome: a nil handle means the family is known to be missing, so
// repeat lookups skip the resolver.
type layoutCacheEntry struct {
	family string
	handle *Handle
}

// Context is the per-layout-task font state. It caches resolved handles and
// memoizes the most recent style, which layout tends to ask for repeatedly
// while walking a subtree.
type Context struct {
	resolver Resolver

	layoutCache   []layoutCacheEntry
	fallbackCache []*Handle

	lastStyle *Style
	lastGroup *Group
}

// NewContext builds a font context over resolver.
func NewContext(resolver Resolver) *Context {
	return &Context{resolver: resolver}
}

// LayoutFontGroupForStyle resolves the font group for style. The same *Style
// pointer resolves to the same group without any cache walk. The returned
// group is never empty: when no listed family resolves, the last-resort face
// is used.
func (c *Context) LayoutFontGroupForStyle(style *Style) *Group {
	if c.lastStyle == style && c.lastGroup != nil {
		return c.lastGroup
	}

	var fonts []*Handle
	for _, family := range style.Families {
		if handle, hit := c.cachedLayoutFont(family, style); hit {
			if handle != nil {
				fonts = append(fonts, handle)
			}
			continue
		}

		tpl, ok := c.resolver.Template(family, style.Descriptor)
		if !ok {
			// Cache the miss so the resolver is consulted once per family.
			c.layoutCache = append(c.layoutCache, layoutCacheEntry{family: family})
			continue
		}
		handle := newHandle(tpl, style.PtSize, style.Variant)
		c.layoutCache = append(c.layoutCache, layoutCacheEntry{family: family, handle: handle})
		fonts = append(fonts, handle)
	}

	if len(fonts) == 0 {
		fonts = append(fonts, c.fallbackFont(style))
	}

	group := &Group{Fonts: fonts}
	c.lastStyle = style
	c.lastGroup = group
	return group
}

func (c *Context) cachedLayoutFont(family string, style *Style) (*Handle, bool) {
	for _, entry := range c.layoutCache {
		if entry.family != family {
			continue
		}
		if entry.handle == nil {
			return nil, true
		}
		h := entry.handle
		if h.Descriptor == style.Descriptor && h.RequestedPtSize == style.PtSize && h.Variant == style.Variant {
			return h, true
		}
	}
	return nil, false
}

func (c *Context) fallbackFont(style *Style) *Handle {
	for _, h := range c.fallbackCache {
		if h.Descriptor == style.Descriptor && h.RequestedPtSize == style.PtSize && h.Variant == style.Variant {
			return h
		}
	}
	tpl := c.resolver.LastResortTemplate(style.Descriptor)
	handle := newHandle(tpl, style.PtSize, style.Variant)
	c.fallbackCache = append(c.fallbackCache, handle)
	return handle
}
