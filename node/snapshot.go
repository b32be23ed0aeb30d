package node

import "time"

// startSnapshotLoop periodically writes the metrics snapshot file. It is a
// no-op unless both MetricsPath and SnapshotInterval are set.
func (n *Node) startSnapshotLoop() {
	if n.config.MetricsPath == "" || n.config.SnapshotInterval <= 0 {
		return
	}

	n.loops.Add(1)
	go func() {
		defer n.loops.Done()
		ticker := time.NewTicker(n.config.SnapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-n.ctx.Done():
				return
			case <-ticker.C:
				if err := n.metrics.WriteSnapshot(n.config.MetricsPath, n.config.NodeID); err != nil {
					n.log.WithError(err).Warn("failed to write metrics snapshot")
				}
			}
		}
	}()
}
