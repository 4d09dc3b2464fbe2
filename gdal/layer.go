package gdal

import (
	"context"

	"github.com/wippyai/gdal-async/dispatch"
	"github.com/wippyai/gdal-async/native"
	"github.com/wippyai/gdal-async/resource"
)

// Layer is the wrapper of a vector layer. Like a band, it keeps its
// dataset open.
type Layer struct {
	c    *dsCore
	node *resource.Node
	name string
	h    native.Handle
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Alive reports whether the layer may still be used.
func (l *Layer) Alive() bool { return l.node.Alive() }

// Node returns the layer's registry node.
func (l *Layer) Node() *resource.Node { return l.node }

func (l *Layer) String() string { return l.node.String() }

func (c *dsCore) wrapLayer(h native.Handle, name string) (*Layer, error) {
	return resource.Resolve(c.rt.reg, resource.Spec{
		ID:     resource.Identity(h),
		Type:   resource.TypeLayer,
		Parent: c.node,
	}, func(n *resource.Node) *Layer {
		return &Layer{c: c, node: n, h: h, name: name}
	})
}

// LayerCount returns the number of vector layers.
func (d *Dataset) LayerCount(ctx context.Context) (int, error) {
	return d.LayerCountAsync().Await(ctx)
}

// LayerCountAsync returns the number of vector layers.
func (d *Dataset) LayerCountAsync() *dispatch.Future[int] {
	c := d.c
	return enqueue(c, c.node, "layer_count", func() (int, error) {
		n, err := c.rt.lib.LayerCount(c.h)
		return n, nativeErr("layer_count", c.path, err)
	})
}

// CreateLayer creates an empty vector layer.
func (d *Dataset) CreateLayer(ctx context.Context, name string) (*Layer, error) {
	return d.CreateLayerAsync(name).Await(ctx)
}

// CreateLayerAsync creates an empty vector layer.
func (d *Dataset) CreateLayerAsync(name string) *dispatch.Future[*Layer] {
	c := d.c
	return enqueue(c, c.node, "create_layer", func() (*Layer, error) {
		h, err := c.rt.lib.CreateLayer(c.h, name)
		if err != nil {
			return nil, nativeErr("create_layer", c.path, err)
		}
		return c.wrapLayer(h, name)
	})
}

// Layer returns the named layer.
func (d *Dataset) Layer(ctx context.Context, name string) (*Layer, error) {
	return d.LayerAsync(name).Await(ctx)
}

// LayerAsync returns the named layer.
func (d *Dataset) LayerAsync(name string) *dispatch.Future[*Layer] {
	c := d.c
	return enqueue(c, c.node, "layer", func() (*Layer, error) {
		h, err := c.rt.lib.Layer(c.h, name)
		if err != nil {
			return nil, nativeErr("layer", c.path, err)
		}
		return c.wrapLayer(h, name)
	})
}

// DeleteLayer deletes the named layer. Its wrapper, if any, is destroyed.
func (d *Dataset) DeleteLayer(ctx context.Context, name string) error {
	return wait(ctx, d.DeleteLayerAsync(name))
}

// DeleteLayerAsync deletes the named layer.
func (d *Dataset) DeleteLayerAsync(name string) *dispatch.Future[struct{}] {
	c := d.c
	return enqueue(c, c.node, "delete_layer", func() (struct{}, error) {
		h, err := c.rt.lib.Layer(c.h, name)
		if err != nil {
			return struct{}{}, nativeErr("delete_layer", c.path, err)
		}
		if err := c.rt.lib.DeleteLayer(c.h, name); err != nil {
			return struct{}{}, nativeErr("delete_layer", c.path, err)
		}
		// Nothing can reuse h before this task returns.
		c.rt.reg.MarkDestroyed(resource.Identity(h))
		return struct{}{}, nil
	})
}

// FeatureCount returns the number of features.
func (l *Layer) FeatureCount(ctx context.Context) (int, error) {
	return l.FeatureCountAsync().Await(ctx)
}

// FeatureCountAsync returns the number of features.
func (l *Layer) FeatureCountAsync() *dispatch.Future[int] {
	return enqueue(l.c, l.node, "feature_count", func() (int, error) {
		n, err := l.c.rt.lib.FeatureCount(l.h)
		return n, nativeErr("feature_count", l.String(), err)
	})
}

// AddFeature stores f and returns its FID.
func (l *Layer) AddFeature(ctx context.Context, f native.Feature) (int64, error) {
	return l.AddFeatureAsync(f).Await(ctx)
}

// AddFeatureAsync stores f and returns its FID.
func (l *Layer) AddFeatureAsync(f native.Feature) *dispatch.Future[int64] {
	return enqueue(l.c, l.node, "add_feature", func() (int64, error) {
		fid, err := l.c.rt.lib.AddFeature(l.h, f)
		return fid, nativeErr("add_feature", l.String(), err)
	})
}

// Feature returns the feature with the given FID.
func (l *Layer) Feature(ctx context.Context, fid int64) (native.Feature, error) {
	return l.FeatureAsync(fid).Await(ctx)
}

// FeatureAsync returns the feature with the given FID.
func (l *Layer) FeatureAsync(fid int64) *dispatch.Future[native.Feature] {
	return enqueue(l.c, l.node, "feature", func() (native.Feature, error) {
		f, err := l.c.rt.lib.Feature(l.h, fid)
		return f, nativeErr("feature", l.String(), err)
	})
}

// Features returns every feature in FID order.
func (l *Layer) Features(ctx context.Context) ([]native.Feature, error) {
	return l.FeaturesAsync().Await(ctx)
}

// FeaturesAsync returns every feature in FID order.
func (l *Layer) FeaturesAsync() *dispatch.Future[[]native.Feature] {
	return enqueue(l.c, l.node, "features", func() ([]native.Feature, error) {
		var out []native.Feature
		err := l.c.rt.lib.Features(l.h, func(f native.Feature) bool {
			out = append(out, f)
			return true
		})
		return out, nativeErr("features", l.String(), err)
	})
}
