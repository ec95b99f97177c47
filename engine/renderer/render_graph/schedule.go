package render_graph

// schedule sorts stages into execution groups. A stage is ready once the producer of every resource it reads with a
// blocking read has run in an earlier group. Each pass gathers all ready stages, in registration order, into the
// next group; stages left over when nothing is ready form a cycle.
func schedule(stages []*GraphicsStage, producers map[Resource]*GraphicsStage) ([][]*GraphicsStage, error) {
	remaining := append([]*GraphicsStage(nil), stages...)
	written := make(map[Resource]bool)
	var groups [][]*GraphicsStage

	ready := func(s *GraphicsStage) bool {
		for _, r := range s.reads {
			if !r.Kind().Blocking() {
				continue
			}
			if _, produced := producers[r]; produced && !written[r] {
				return false
			}
		}
		return true
	}

	for len(remaining) > 0 {
		var group, rest []*GraphicsStage
		for _, s := range remaining {
			if ready(s) {
				group = append(group, s)
			} else {
				rest = append(rest, s)
			}
		}
		if len(group) == 0 {
			break
		}
		for _, s := range group {
			for _, w := range s.effectiveWrites() {
				written[w.Resource] = true
			}
		}
		groups = append(groups, group)
		remaining = rest
	}

	if len(remaining) > 0 {
		names := make([]string, len(remaining))
		for i, s := range remaining {
			names[i] = s.name
		}
		return nil, &ConfigError{Kind: KindCycle, Stages: names, Msg: "stages depend on each other's output"}
	}
	return groups, nil
}
