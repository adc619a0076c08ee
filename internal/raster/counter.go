package raster

import "sync/atomic"

type counter struct{ n atomic.Int64 }

func (c *counter) inc() int { return int(c.n.Add(1)) }
