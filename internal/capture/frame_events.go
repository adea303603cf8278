// frame_events.go — Frame and target events that populate the frame graph.
// Each one may complete observations parked on the frame it describes.
package capture

// OnFrameAttached records a parent/child frame pair.
func (c *Capture) OnFrameAttached(tabID int, frameID, parentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindFrame)
	if ts == nil {
		return err
	}
	ts.activate()
	c.frames.RecordFrameRelationship(tabID, frameID, parentID)
	c.release(ts, frameID)
	c.updateGauges()
	return nil
}

// OnFrameNavigated records a frame's URL (and its parent when reported).
// A frame without a parent is the tab's main frame and becomes a target.
func (c *Capture) OnFrameNavigated(tabID int, frameID, parentID, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindFrame)
	if ts == nil {
		return err
	}
	ts.activate()
	g := c.frames.Graph(tabID)
	if parentID == "" {
		g.AddTarget(frameID)
		if ts.url == "" {
			ts.setURL(url)
		}
	} else {
		g.RecordRelationship(frameID, parentID)
	}
	g.RecordURL(frameID, url)
	c.release(ts, frameID)
	c.updateGauges()
	return nil
}

// OnTargetAttached marks targetID as a known target (an attached frame
// session such as an out-of-process iframe).
func (c *Capture) OnTargetAttached(tabID int, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, err := c.admit(tabID, kindFrame)
	if ts == nil {
		return err
	}
	ts.activate()
	c.frames.Graph(tabID).AddTarget(targetID)
	c.release(ts, targetID)
	c.updateGauges()
	return nil
}

// OnTargetDetached unmarks targetID. Its ancestry links stay so in-flight
// events still resolve through it.
func (c *Capture) OnTargetDetached(tabID int, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContextInvalidated
	}
	if g, ok := c.frames.Lookup(tabID); ok {
		g.RemoveTarget(targetID)
	}
	return nil
}
