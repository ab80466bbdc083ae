package cds

import (
	"context"
	"fmt"
	"strings"
)

// buildChain joins titles with cfg.Separator, first escaping any
// occurrence of the separator or the escape character within a title.
func (c *Core) buildChain(titles []string) string {
	escaped := make([]string, len(titles))
	for i, t := range titles {
		e := strings.ReplaceAll(t, c.cfg.Escape, c.cfg.Escape+c.cfg.Escape)
		e = strings.ReplaceAll(e, c.cfg.Separator, c.cfg.Escape+c.cfg.Separator)
		escaped[i] = e
	}
	return c.cfg.Separator + strings.Join(escaped, c.cfg.Separator)
}

// applyLayoutMapping applies every configured regex→replacement rule
// to chain, in order, before it reaches the cache or the database.
func (c *Core) applyLayoutMapping(chain string) string {
	for _, rule := range c.mappingRules {
		chain = rule.pattern.ReplaceAllString(chain, rule.replacement)
	}
	return chain
}

// applyLayout runs item through the configured layout engine, ensures
// every container in each emitted chain exists (at most once), assigns
// fan-art, and returns the containers changed by the process.
func (c *Core) applyLayout(ctx context.Context, item *Object, rootPath string) (ChangedContainers, error) {
	var changed ChangedContainers
	descriptors, err := c.layout.ProcessObject(ctx, item, rootPath)
	if err != nil {
		c.log.Warn("layout engine error", "item_id", item.ID, "error", err.Error())
		return changed, fmt.Errorf("%w: %v", ErrLayout, err)
	}
	for _, d := range descriptors {
		chain := d.Chain
		if len(d.Segments) > 0 {
			chain = c.buildChain(d.Segments)
		}
		chain = c.applyLayoutMapping(chain)
		chainChanged, err := c.addContainerChain(ctx, chain, d.UpnpClass, item.RefID, item, d.Metadata)
		if err != nil {
			c.log.Warn("add container chain failed", "chain", chain, "error", err.Error())
			continue
		}
		changed.Merge(chainChanged)
	}
	return changed, nil
}

// addContainerChain ensures every prefix of chain exists, consulting
// the cache before the database, and assigns fan-art for any newly
// created containers. sourceObj is the physical item driving the
// layout (nil when called without a source, e.g. from the public
// AddContainerChain surface).
func (c *Core) addContainerChain(ctx context.Context, chain, upnpClass string, refID int64, sourceObj *Object, meta *Metadata) (ChangedContainers, error) {
	var changed ChangedContainers

	if _, ok := c.cache.get(chain); ok {
		return changed, nil
	}

	chainMeta := meta
	if chainMeta != nil {
		chainMeta = chainMeta.ForChainContainer()
	}

	terminalID, createdIDs, err := c.db.AddContainerChain(ctx, chain, upnpClass, refID, chainMeta)
	if err != nil {
		return changed, fmt.Errorf("add container chain %q: %w", chain, err)
	}

	var created []*Object
	for _, id := range createdIDs {
		obj, err := c.db.LoadObject(ctx, id)
		if err != nil {
			c.log.Warn("failed to load newly created container", "id", id, "error", err.Error())
			continue
		}
		c.cache.put(obj.Location, obj)
		created = append(created, obj)
	}

	terminal, err := c.db.LoadObject(ctx, terminalID)
	if err == nil {
		c.cache.put(chain, terminal)
	}

	if sourceObj != nil {
		c.assignFanArt(ctx, created, sourceObj)
	}

	if len(created) > 0 {
		changed.UPnP = append(changed.UPnP, terminalID)
		changed.UI = append(changed.UI, terminalID)
	}
	return changed, nil
}

// assignFanArt gives each newly created container cover art: a
// dedicated container-art handler if one supplied a resource already,
// otherwise the source item's album art when the source is itself a
// container, or when the container falls within the configured parent
// window and exceeds the minimum path depth.
func (c *Core) assignFanArt(ctx context.Context, created []*Object, source *Object) {
	sourceArt := source.ResourceByHandler(ResourceHandlerAlbumArt)
	if sourceArt == nil {
		return
	}
	for i, container := range created {
		if container.ResourceByHandler(ResourceHandlerContainerArt) != nil {
			continue
		}
		withinParentWindow := i < c.cfg.ContainerArtParents
		deepEnough := container.PathDepth() > c.cfg.ContainerArtMinDepth
		if source.IsContainer() || (withinParentWindow && deepEnough) {
			art := &Resource{HandlerType: ResourceHandlerContainerArt}
			art.SetAttr("fanart_obj_id", fmt.Sprintf("%d", source.ID))
			if objID, ok := sourceArt.Attr("fanart_obj_id"); ok {
				art.SetAttr("fanart_obj_id", objID)
			}
			if resID, ok := sourceArt.Attr("fanart_res_id"); ok {
				art.SetAttr("fanart_res_id", resID)
			} else {
				art.SetAttr("fanart_res_id", "0")
			}
			container.Resources = append(container.Resources, art)
			if _, err := c.db.UpdateObject(ctx, container); err != nil {
				c.log.Warn("failed to persist fan-art assignment", "container_id", container.ID, "error", err.Error())
			}
		}
	}
}
