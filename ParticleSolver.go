package liquidbox

import (
	"math"
	"slices"
)

// solve advances the particles by one world step, sub-stepped
// step.ParticleIterations times.
func (ps *ParticleSystem) solve(step TimeStep) {
	if ps.ParticleCount() == 0 {
		return
	}

	ps.timeElapsed += step.Dt
	if ps.expirations != nil {
		for i, expiration := range ps.expirations {
			if expiration > 0.0 && expiration <= ps.timeElapsed {
				ps.setParticleFlags(i, ps.flags[i]|ZombieParticle)
			}
		}
	}
	if ps.allParticleFlags&ZombieParticle != 0 {
		ps.solveZombie()
	}
	ps.updateAllParticleFlags()
	if ps.paused || ps.ParticleCount() == 0 {
		return
	}

	subStep := step
	subStep.Dt /= float64(step.ParticleIterations)
	subStep.InvDt *= float64(step.ParticleIterations)
	for iteration := 0; iteration < step.ParticleIterations; iteration++ {
		ps.timestamp++
		ps.solveIteration(subStep, iteration)
	}
	ps.timestamp++
}

func (ps *ParticleSystem) solveIteration(step TimeStep, iteration int) {
	ps.prepareScratch()

	ps.updateContacts(false)
	ps.updateBodyContacts()
	ps.computeWeight()
	if ps.allGroupFlags&groupNeedsUpdateDepth != 0 {
		ps.computeDepth()
	}
	if ps.allParticleFlags&ReactiveParticle != 0 {
		ps.updatePairsAndTriadsWithReactiveParticles()
	}
	if ps.hasForce {
		ps.solveForce(step)
	}
	if ps.allParticleFlags&ViscousParticle != 0 {
		ps.solveViscous()
	}
	if ps.allParticleFlags&RepulsiveParticle != 0 {
		ps.solveRepulsive(step)
	}
	if ps.allParticleFlags&PowderParticle != 0 {
		ps.solvePowder(step)
	}
	if ps.allParticleFlags&TensileParticle != 0 {
		ps.solveTensile(step)
	}
	if ps.allGroupFlags&SolidParticleGroup != 0 {
		ps.solveSolid(step)
	}
	if ps.allParticleFlags&ColorMixingParticle != 0 {
		ps.solveColorMixing()
	}
	ps.solveGravity(step)
	if ps.allParticleFlags&StaticPressureParticle != 0 {
		ps.solveStaticPressure(step)
	}
	ps.solvePressure(step)
	ps.solveDamping(step)
	if ps.allParticleFlags&extraDampingFlags != 0 {
		ps.solveExtraDamping()
	}
	if ps.allParticleFlags&ElasticParticle != 0 {
		ps.solveElastic(step)
	}
	if ps.allParticleFlags&SpringParticle != 0 {
		ps.solveSpring(step)
	}
	ps.limitVelocity(step)
	if ps.allGroupFlags&RigidParticleGroup != 0 {
		ps.solveRigidDamping()
	}
	if ps.allParticleFlags&BarrierParticle != 0 {
		ps.solveBarrier(step)
	}
	ps.solveCollision(step, iteration)
	if ps.allGroupFlags&RigidParticleGroup != 0 {
		ps.solveRigid(step)
	}
	if ps.allParticleFlags&WallParticle != 0 {
		ps.solveWall()
	}

	for i := range ps.positions {
		ps.positions[i] = ps.positions[i].Add(ps.velocities[i].Scale(step.Dt))
	}
	ps.proxiesStale = true
}

func (ps *ParticleSystem) prepareScratch() {
	n := ps.ParticleCount()
	ps.weights = slices.Grow(ps.weights[:0], n)[:n]
	ps.accumulations = slices.Grow(ps.accumulations[:0], n)[:n]
	ps.accumulations2 = slices.Grow(ps.accumulations2[:0], n)[:n]
}

// criticalVelocity is the speed at which a particle crosses one diameter
// per sub-step.
func (ps *ParticleSystem) criticalVelocity(step TimeStep) float64 {
	return ps.particleDiameter * step.InvDt
}

func (ps *ParticleSystem) criticalVelocitySquared(step TimeStep) float64 {
	v := ps.criticalVelocity(step)
	return v * v
}

func (ps *ParticleSystem) criticalPressure(step TimeStep) float64 {
	return ps.def.Density * ps.criticalVelocitySquared(step)
}

// computeWeight sums the contact weights of each particle, a measure of
// how compressed it is.
func (ps *ParticleSystem) computeWeight() {
	clear(ps.weights)
	for _, c := range ps.bodyContacts {
		ps.weights[c.Index] += c.Weight
	}
	for _, c := range ps.contacts {
		ps.weights[c.IndexA] += c.Weight
		ps.weights[c.IndexB] += c.Weight
	}
}

// computeDepth computes, for solid groups that changed, the distance of
// each particle from the group surface.
func (ps *ParticleSystem) computeDepth() {
	var contactGroups []ParticleContact
	for _, c := range ps.contacts {
		g := ps.groups[c.IndexA]
		if g != nil && g == ps.groups[c.IndexB] && g.groupFlags&groupNeedsUpdateDepth != 0 {
			contactGroups = append(contactGroups, c)
		}
	}

	var groupsToUpdate []*ParticleGroup
	for g := ps.groupList; g != nil; g = g.next {
		if g.groupFlags&groupNeedsUpdateDepth == 0 {
			continue
		}
		groupsToUpdate = append(groupsToUpdate, g)
		ps.setGroupFlags(g, g.groupFlags&^groupNeedsUpdateDepth)
		for i := g.firstIndex; i < g.lastIndex; i++ {
			ps.accumulations[i] = 0.0
		}
	}

	// Particles with few neighbours lie on the surface.
	for _, c := range contactGroups {
		ps.accumulations[c.IndexA] += c.Weight
		ps.accumulations[c.IndexB] += c.Weight
	}
	for _, g := range groupsToUpdate {
		for i := g.firstIndex; i < g.lastIndex; i++ {
			if ps.accumulations[i] < 0.8 {
				ps.depths[i] = 0.0
			} else {
				ps.depths[i] = maxFloat
			}
		}
	}

	// Relax the depths inwards; the number of passes bounds the group
	// diameter in particles.
	iterationCount := int(math.Sqrt(float64(ps.ParticleCount())))
	for t := 0; t < iterationCount; t++ {
		updated := false
		for _, c := range contactGroups {
			a, b := c.IndexA, c.IndexB
			r := 1.0 - c.Weight
			ap0, bp0 := ps.depths[a], ps.depths[b]
			ap1 := bp0 + r
			bp1 := ap0 + r
			if ap0 > ap1 {
				ps.depths[a] = ap1
				updated = true
			}
			if bp0 > bp1 {
				ps.depths[b] = bp1
				updated = true
			}
		}
		if !updated {
			break
		}
	}

	for _, g := range groupsToUpdate {
		for i := g.firstIndex; i < g.lastIndex; i++ {
			if ps.depths[i] < maxFloat {
				ps.depths[i] *= ps.particleDiameter
			} else {
				ps.depths[i] = 0.0
			}
		}
	}
}

// updatePairsAndTriadsWithReactiveParticles connects reactive particles
// to their neighbours once, then clears the reactive flag.
func (ps *ParticleSystem) updatePairsAndTriadsWithReactiveParticles() {
	ps.updatePairsAndTriads(0, ps.ParticleCount(), connectionFilter{
		necessary: func(index int) bool {
			return ps.flags[index]&ReactiveParticle != 0
		},
	})
	for i := range ps.flags {
		ps.flags[i] &^= ReactiveParticle
	}
	ps.allParticleFlags &^= ReactiveParticle
}

func (ps *ParticleSystem) solveForce(step TimeStep) {
	velocityPerForce := step.Dt * ps.particleInvMass()
	for i := range ps.forces {
		ps.velocities[i] = ps.velocities[i].Add(ps.forces[i].Scale(velocityPerForce))
	}
	clear(ps.forces)
	ps.hasForce = false
}

func (ps *ParticleSystem) solveViscous() {
	strength := ps.def.ViscousStrength
	invMass := ps.particleInvMass()
	for _, c := range ps.bodyContacts {
		a := c.Index
		if ps.flags[a]&ViscousParticle == 0 {
			continue
		}
		p := ps.positions[a]
		v := c.Body.LinearVelocityFromWorldPoint(p).Sub(ps.velocities[a])
		f := v.Scale(strength * c.Mass * c.Weight)
		ps.velocities[a] = ps.velocities[a].Add(f.Scale(invMass))
		c.Body.ApplyLinearImpulse(f.Neg(), p, true)
	}
	for _, c := range ps.contacts {
		if c.Flags&ViscousParticle == 0 {
			continue
		}
		a, b := c.IndexA, c.IndexB
		v := ps.velocities[b].Sub(ps.velocities[a])
		f := v.Scale(strength * c.Weight)
		ps.velocities[a] = ps.velocities[a].Add(f)
		ps.velocities[b] = ps.velocities[b].Sub(f)
	}
}

func (ps *ParticleSystem) solveRepulsive(step TimeStep) {
	strength := ps.def.RepulsiveStrength * ps.criticalVelocity(step)
	for _, c := range ps.contacts {
		if c.Flags&RepulsiveParticle == 0 {
			continue
		}
		a, b := c.IndexA, c.IndexB
		if ps.groups[a] == ps.groups[b] {
			continue
		}
		f := c.Normal.Scale(strength * c.Weight)
		ps.velocities[a] = ps.velocities[a].Sub(f)
		ps.velocities[b] = ps.velocities[b].Add(f)
	}
}

func (ps *ParticleSystem) solvePowder(step TimeStep) {
	strength := ps.def.PowderStrength * ps.criticalVelocity(step)
	minWeight := 1.0 - particleStride
	invMass := ps.particleInvMass()
	for _, c := range ps.bodyContacts {
		a := c.Index
		if ps.flags[a]&PowderParticle == 0 || c.Weight <= minWeight {
			continue
		}
		p := ps.positions[a]
		f := c.Normal.Scale(strength * c.Mass * (c.Weight - minWeight))
		ps.velocities[a] = ps.velocities[a].Sub(f.Scale(invMass))
		c.Body.ApplyLinearImpulse(f, p, true)
	}
	for _, c := range ps.contacts {
		if c.Flags&PowderParticle == 0 || c.Weight <= minWeight {
			continue
		}
		f := c.Normal.Scale(strength * (c.Weight - minWeight))
		ps.velocities[c.IndexA] = ps.velocities[c.IndexA].Sub(f)
		ps.velocities[c.IndexB] = ps.velocities[c.IndexB].Add(f)
	}
}

// solveTensile applies surface tension: extra pressure at the surface
// and a force smoothing the outline.
func (ps *ParticleSystem) solveTensile(step TimeStep) {
	clear(ps.accumulations2)
	for _, c := range ps.contacts {
		if c.Flags&TensileParticle == 0 {
			continue
		}
		weightedNormal := c.Normal.Scale((1.0 - c.Weight) * c.Weight)
		ps.accumulations2[c.IndexA] = ps.accumulations2[c.IndexA].Sub(weightedNormal)
		ps.accumulations2[c.IndexB] = ps.accumulations2[c.IndexB].Add(weightedNormal)
	}

	criticalVelocity := ps.criticalVelocity(step)
	pressureStrength := ps.def.SurfaceTensionPressureStrength * criticalVelocity
	normalStrength := ps.def.SurfaceTensionNormalStrength * criticalVelocity
	maxVelocityVariation := maxParticleForce * criticalVelocity
	for _, c := range ps.contacts {
		if c.Flags&TensileParticle == 0 {
			continue
		}
		a, b := c.IndexA, c.IndexB
		h := ps.weights[a] + ps.weights[b]
		s := ps.accumulations2[b].Sub(ps.accumulations2[a])
		fn := math.Min(pressureStrength*(h-2.0)+normalStrength*s.Dot(c.Normal), maxVelocityVariation) * c.Weight
		f := c.Normal.Scale(fn)
		ps.velocities[a] = ps.velocities[a].Sub(f)
		ps.velocities[b] = ps.velocities[b].Add(f)
	}
}

// solveSolid pushes particles of other groups out of solid groups in
// proportion to their depth.
func (ps *ParticleSystem) solveSolid(step TimeStep) {
	ejectionStrength := step.InvDt * ps.def.EjectionStrength
	for _, c := range ps.contacts {
		a, b := c.IndexA, c.IndexB
		if ps.groups[a] == ps.groups[b] {
			continue
		}
		h := ps.depths[a] + ps.depths[b]
		f := c.Normal.Scale(ejectionStrength * h * c.Weight)
		ps.velocities[a] = ps.velocities[a].Sub(f)
		ps.velocities[b] = ps.velocities[b].Add(f)
	}
}

func (ps *ParticleSystem) solveColorMixing() {
	strength := int(256.0 * ps.def.ColorMixingStrength)
	for _, c := range ps.contacts {
		a, b := c.IndexA, c.IndexB
		if ps.flags[a]&ps.flags[b]&ColorMixingParticle != 0 {
			mixColors(&ps.colors[a], &ps.colors[b], strength)
		}
	}
}

func (ps *ParticleSystem) solveGravity(step TimeStep) {
	gravity := ps.world.gravity.Scale(step.Dt * ps.def.GravityScale)
	for i := range ps.velocities {
		ps.velocities[i] = ps.velocities[i].Add(gravity)
	}
}

// solveStaticPressure relaxes a pressure field that balances the weight
// of the particles above, so piles stay less compressed.
func (ps *ParticleSystem) solveStaticPressure(step TimeStep) {
	criticalPressure := ps.criticalPressure(step)
	pressurePerWeight := ps.def.StaticPressureStrength * criticalPressure
	maxPressure := maxParticlePressure * criticalPressure
	relaxation := ps.def.StaticPressureRelaxation

	for t := 0; t < ps.def.StaticPressureIterations; t++ {
		clear(ps.accumulations)
		for _, c := range ps.contacts {
			if c.Flags&StaticPressureParticle == 0 {
				continue
			}
			a, b := c.IndexA, c.IndexB
			ps.accumulations[a] += c.Weight * ps.staticPressures[b]
			ps.accumulations[b] += c.Weight * ps.staticPressures[a]
		}
		for i := range ps.staticPressures {
			w := ps.weights[i]
			if ps.flags[i]&StaticPressureParticle == 0 {
				ps.staticPressures[i] = 0.0
				continue
			}
			h := (ps.accumulations[i] + pressurePerWeight*(w-minParticleWeight)) / (w + relaxation)
			ps.staticPressures[i] = clampf(h, 0.0, maxPressure)
		}
	}
}

// solvePressure pushes compressed particles apart and away from bodies.
func (ps *ParticleSystem) solvePressure(step TimeStep) {
	criticalPressure := ps.criticalPressure(step)
	pressurePerWeight := ps.def.PressureStrength * criticalPressure
	maxPressure := maxParticlePressure * criticalPressure

	for i, w := range ps.weights {
		h := pressurePerWeight * math.Max(0.0, w-minParticleWeight)
		ps.accumulations[i] = math.Min(h, maxPressure)
	}
	if ps.allParticleFlags&noPressureFlags != 0 {
		for i, flags := range ps.flags {
			if flags&noPressureFlags != 0 {
				ps.accumulations[i] = 0.0
			}
		}
	}
	if ps.allParticleFlags&StaticPressureParticle != 0 {
		for i, flags := range ps.flags {
			if flags&StaticPressureParticle != 0 {
				ps.accumulations[i] += ps.staticPressures[i]
			}
		}
	}

	velocityPerPressure := step.Dt / (ps.def.Density * ps.particleDiameter)
	invMass := ps.particleInvMass()
	for _, c := range ps.bodyContacts {
		a := c.Index
		p := ps.positions[a]
		h := ps.accumulations[a] + pressurePerWeight*c.Weight
		f := c.Normal.Scale(velocityPerPressure * c.Weight * c.Mass * h)
		ps.velocities[a] = ps.velocities[a].Sub(f.Scale(invMass))
		c.Body.ApplyLinearImpulse(f, p, true)
	}
	for _, c := range ps.contacts {
		a, b := c.IndexA, c.IndexB
		h := ps.accumulations[a] + ps.accumulations[b]
		f := c.Normal.Scale(velocityPerPressure * c.Weight * h)
		ps.velocities[a] = ps.velocities[a].Sub(f)
		ps.velocities[b] = ps.velocities[b].Add(f)
	}
}

// solveDamping reduces the approaching normal velocity of contacts.
func (ps *ParticleSystem) solveDamping(step TimeStep) {
	linearDamping := ps.def.DampingStrength
	quadraticDamping := 1.0 / ps.criticalVelocity(step)
	invMass := ps.particleInvMass()
	for _, c := range ps.bodyContacts {
		a := c.Index
		p := ps.positions[a]
		v := c.Body.LinearVelocityFromWorldPoint(p).Sub(ps.velocities[a])
		vn := v.Dot(c.Normal)
		if vn >= 0.0 {
			continue
		}
		damping := math.Max(linearDamping*c.Weight, math.Min(-quadraticDamping*vn, 0.5))
		f := c.Normal.Scale(damping * c.Mass * vn)
		ps.velocities[a] = ps.velocities[a].Add(f.Scale(invMass))
		c.Body.ApplyLinearImpulse(f.Neg(), p, true)
	}
	for _, c := range ps.contacts {
		a, b := c.IndexA, c.IndexB
		v := ps.velocities[b].Sub(ps.velocities[a])
		vn := v.Dot(c.Normal)
		if vn >= 0.0 {
			continue
		}
		damping := math.Max(linearDamping*c.Weight, math.Min(-quadraticDamping*vn, 0.5))
		f := c.Normal.Scale(damping * vn)
		ps.velocities[a] = ps.velocities[a].Add(f)
		ps.velocities[b] = ps.velocities[b].Sub(f)
	}
}

// solveExtraDamping damps static pressure particles against bodies,
// which otherwise bounce under their own pressure.
func (ps *ParticleSystem) solveExtraDamping() {
	invMass := ps.particleInvMass()
	for _, c := range ps.bodyContacts {
		a := c.Index
		if ps.flags[a]&extraDampingFlags == 0 {
			continue
		}
		p := ps.positions[a]
		v := c.Body.LinearVelocityFromWorldPoint(p).Sub(ps.velocities[a])
		vn := v.Dot(c.Normal)
		if vn >= 0.0 {
			continue
		}
		f := c.Normal.Scale(0.5 * c.Mass * vn)
		ps.velocities[a] = ps.velocities[a].Add(f.Scale(invMass))
		c.Body.ApplyLinearImpulse(f.Neg(), p, true)
	}
}

// solveElastic pulls each triad towards its rest shape, rotated to best
// fit the current one.
func (ps *ParticleSystem) solveElastic(step TimeStep) {
	elasticStrength := step.InvDt * ps.def.ElasticStrength
	for _, t := range ps.triads {
		if t.flags&ElasticParticle == 0 {
			continue
		}
		a, b, c := t.a, t.b, t.c
		pa := ps.positions[a].Add(ps.velocities[a].Scale(step.Dt))
		pb := ps.positions[b].Add(ps.velocities[b].Scale(step.Dt))
		pc := ps.positions[c].Add(ps.velocities[c].Scale(step.Dt))
		mid := pa.Add(pb).Add(pc).Scale(1.0 / 3.0)
		pa = pa.Sub(mid)
		pb = pb.Sub(mid)
		pc = pc.Sub(mid)

		r := Rot{
			S: t.pa.Cross(pa) + t.pb.Cross(pb) + t.pc.Cross(pc),
			C: t.pa.Dot(pa) + t.pb.Dot(pb) + t.pc.Dot(pc),
		}
		r2 := r.S*r.S + r.C*r.C
		if r2 < epsilon {
			continue
		}
		invR := 1.0 / math.Sqrt(r2)
		r.S *= invR
		r.C *= invR

		strength := elasticStrength * t.strength
		ps.velocities[a] = ps.velocities[a].Add(r.MulV(t.pa).Sub(pa).Scale(strength))
		ps.velocities[b] = ps.velocities[b].Add(r.MulV(t.pb).Sub(pb).Scale(strength))
		ps.velocities[c] = ps.velocities[c].Add(r.MulV(t.pc).Sub(pc).Scale(strength))
	}
}

// solveSpring pulls each spring pair towards its rest distance.
func (ps *ParticleSystem) solveSpring(step TimeStep) {
	springStrength := step.InvDt * ps.def.SpringStrength
	for _, pair := range ps.pairs {
		if pair.flags&SpringParticle == 0 {
			continue
		}
		a, b := pair.a, pair.b
		pa := ps.positions[a].Add(ps.velocities[a].Scale(step.Dt))
		pb := ps.positions[b].Add(ps.velocities[b].Scale(step.Dt))
		d := pb.Sub(pa)
		r1 := d.Length()
		if r1 < epsilon {
			continue
		}
		strength := springStrength * pair.strength
		f := d.Scale(strength * (pair.distance - r1) / r1)
		ps.velocities[a] = ps.velocities[a].Sub(f)
		ps.velocities[b] = ps.velocities[b].Add(f)
	}
}

// limitVelocity caps speeds at one diameter per sub-step so particles
// cannot tunnel through each other.
func (ps *ParticleSystem) limitVelocity(step TimeStep) {
	criticalVelocitySquared := ps.criticalVelocitySquared(step)
	for i, v := range ps.velocities {
		v2 := v.Dot(v)
		if v2 > criticalVelocitySquared {
			ps.velocities[i] = v.Scale(math.Sqrt(criticalVelocitySquared / v2))
		}
	}
}

// dampingParameter is the effective mass of one side of a damped
// contact.
type dampingParameter struct {
	invMass         float64
	invInertia      float64
	tangentDistance float64
}

func makeDampingParameter(mass, inertia float64, center, point, normal Vec2) dampingParameter {
	var p dampingParameter
	if mass > 0.0 {
		p.invMass = 1.0 / mass
	}
	if inertia > 0.0 {
		p.invInertia = 1.0 / inertia
	}
	p.tangentDistance = point.Sub(center).Cross(normal)
	return p
}

func (ps *ParticleSystem) dampingParameterFor(g *ParticleGroup, point, normal Vec2) dampingParameter {
	if g.isRigid() {
		return makeDampingParameter(g.Mass(), g.Inertia(), g.Center(), point, normal)
	}
	return dampingParameter{invMass: ps.particleInvMass()}
}

func computeDampingImpulse(a, b dampingParameter, normalVelocity float64) float64 {
	invMass := a.invMass + a.invInertia*a.tangentDistance*a.tangentDistance +
		b.invMass + b.invInertia*b.tangentDistance*b.tangentDistance
	if invMass > 0.0 {
		return normalVelocity / invMass
	}
	return 0.0
}

func (ps *ParticleSystem) applyDamping(p dampingParameter, g *ParticleGroup, index int, impulse float64, normal Vec2) {
	if g.isRigid() {
		g.linearVelocity = g.linearVelocity.Add(normal.Scale(impulse * p.invMass))
		g.angularVelocity += impulse * p.tangentDistance * p.invInertia
		return
	}
	ps.velocities[index] = ps.velocities[index].Add(normal.Scale(impulse * p.invMass))
}

// velocityAt returns the velocity of particle index at point, following
// its group when the group is rigid.
func (ps *ParticleSystem) velocityAt(g *ParticleGroup, index int, point Vec2) Vec2 {
	if g.isRigid() {
		return g.LinearVelocityFromWorldPoint(point)
	}
	return ps.velocities[index]
}

// solveRigidDamping damps contacts involving rigid groups as a whole, so
// the group reacts with its combined mass and inertia.
func (ps *ParticleSystem) solveRigidDamping() {
	damping := ps.def.DampingStrength
	for _, c := range ps.bodyContacts {
		a := c.Index
		g := ps.groups[a]
		if !g.isRigid() {
			continue
		}
		b := c.Body
		p := ps.positions[a]
		v := b.LinearVelocityFromWorldPoint(p).Sub(g.LinearVelocityFromWorldPoint(p))
		vn := v.Dot(c.Normal)
		if vn >= 0.0 {
			continue
		}
		pa := ps.dampingParameterFor(g, p, c.Normal)
		pb := makeDampingParameter(b.mass, b.I, b.WorldCenter(), p, c.Normal)
		f := damping * math.Min(c.Weight, 1.0) * computeDampingImpulse(pa, pb, vn)
		ps.applyDamping(pa, g, a, f, c.Normal)
		b.ApplyLinearImpulse(c.Normal.Scale(-f), p, true)
	}
	for _, c := range ps.contacts {
		a, b := c.IndexA, c.IndexB
		ga, gb := ps.groups[a], ps.groups[b]
		if ga == gb || !(ga.isRigid() || gb.isRigid()) {
			continue
		}
		p := ps.positions[a].Add(ps.positions[b]).Scale(0.5)
		v := ps.velocityAt(gb, b, p).Sub(ps.velocityAt(ga, a, p))
		vn := v.Dot(c.Normal)
		if vn >= 0.0 {
			continue
		}
		pa := ps.dampingParameterFor(ga, p, c.Normal)
		pb := ps.dampingParameterFor(gb, p, c.Normal)
		f := damping * c.Weight * computeDampingImpulse(pa, pb, vn)
		ps.applyDamping(pa, ga, a, f, c.Normal)
		ps.applyDamping(pb, gb, b, -f, c.Normal)
	}
}

// solveBarrier stops particles of other groups from passing between the
// two particles of a barrier pair during the next barrierCollisionTime
// sub-steps.
func (ps *ParticleSystem) solveBarrier(step TimeStep) {
	for i, flags := range ps.flags {
		if flags&barrierWallFlags == barrierWallFlags {
			ps.velocities[i] = Vec2{}
		}
	}

	tmax := barrierCollisionTime * step.Dt
	mass := ps.particleMass()
	for _, pair := range ps.pairs {
		if pair.flags&BarrierParticle == 0 {
			continue
		}
		a, b := pair.a, pair.b
		pa := ps.positions[a]
		pb := ps.positions[b]
		aabb := AABB{LowerBound: Vec2Min(pa, pb), UpperBound: Vec2Max(pa, pb)}
		ga, gb := ps.groups[a], ps.groups[b]
		va := ps.velocityAt(ga, a, pa)
		vb := ps.velocityAt(gb, b, pb)
		pba := pb.Sub(pa)
		vba := vb.Sub(va)

		for c := range ps.insideBounds(aabb) {
			gc := ps.groups[c]
			if gc == ga || gc == gb {
				continue
			}
			pc := ps.positions[c]
			vc := ps.velocityAt(gc, c, pc)

			// Find t and s with (1-s)*(pa+t*va) + s*(pb+t*vb) = pc+t*vc.
			pca := pc.Sub(pa)
			vca := vc.Sub(va)
			s, ok := barrierCrossing(pba, vba, pca, vca, tmax)
			if !ok {
				continue
			}

			// Match the velocity of c to the barrier at the crossing.
			dv := va.Add(vba.Scale(s)).Sub(vc)
			f := dv.Scale(mass)
			if gc.isRigid() {
				groupMass := gc.Mass()
				inertia := gc.Inertia()
				if groupMass > 0.0 {
					gc.linearVelocity = gc.linearVelocity.Add(f.Scale(1.0 / groupMass))
				}
				if inertia > 0.0 {
					gc.angularVelocity += pc.Sub(gc.Center()).Cross(f) / inertia
				}
			} else {
				ps.velocities[c] = ps.velocities[c].Add(dv)
			}
			// Push the barrier back with the opposite force.
			ps.ParticleApplyForce(c, f.Scale(-step.InvDt))
		}
	}
}

// barrierCrossing returns the barrier parameter s where a particle at
// pca moving at vca, both relative to the barrier start, crosses the
// segment pba moving at vba within [0, tmax).
func barrierCrossing(pba, vba, pca, vca Vec2, tmax float64) (float64, bool) {
	e2 := vba.Cross(vca)
	e1 := pba.Cross(vca) - pca.Cross(vba)
	e0 := pba.Cross(pca)

	at := func(t float64) (float64, bool) {
		if !(t >= 0.0 && t < tmax) {
			return 0.0, false
		}
		qba := pba.Add(vba.Scale(t))
		qca := pca.Add(vca.Scale(t))
		qq := qba.Dot(qba)
		if qq == 0.0 {
			return 0.0, false
		}
		s := qba.Dot(qca) / qq
		return s, s >= 0.0 && s <= 1.0
	}

	if e2 == 0.0 {
		if e1 == 0.0 {
			return 0.0, false
		}
		return at(-e0 / e1)
	}
	det := e1*e1 - 4.0*e0*e2
	if det < 0.0 {
		return 0.0, false
	}
	sqrtDet := math.Sqrt(det)
	t1 := (-e1 - sqrtDet) / (2.0 * e2)
	t2 := (-e1 + sqrtDet) / (2.0 * e2)
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	if s, ok := at(t1); ok {
		return s, true
	}
	return at(t2)
}

// solveCollision casts each particle's motion for this sub-step against
// nearby fixtures and stops it at the surface. The body receives the
// opposite impulse.
func (ps *ParticleSystem) solveCollision(step TimeStep, iteration int) {
	aabb := AABB{
		LowerBound: Vec2{maxFloat, maxFloat},
		UpperBound: Vec2{-maxFloat, -maxFloat},
	}
	for i, p1 := range ps.positions {
		p2 := p1.Add(ps.velocities[i].Scale(step.Dt))
		aabb.LowerBound = Vec2Min(aabb.LowerBound, Vec2Min(p1, p2))
		aabb.UpperBound = Vec2Max(aabb.UpperBound, Vec2Max(p1, p2))
	}

	mass := ps.particleMass()
	ps.queryFixtures(aabb, func(f *Fixture, childIndex, a int) {
		body := f.body
		ap := ps.positions[a]
		av := ps.velocities[a]

		input := RayCastInput{P1: ap, P2: ap.Add(av.Scale(step.Dt)), MaxFraction: 1.0}
		if iteration == 0 {
			// Carry the particle along with the body's motion this step:
			// start from its position relative to the previous transform.
			xf0 := body.sweep.Transform(0.0)
			p1 := xf0.MulTV(ap)
			if f.shape.Type() == ShapeCircle {
				// Circles keep their orientation relative to the particle.
				p1 = p1.Sub(body.LocalCenter())
				p1 = xf0.Q.MulV(p1)
				p1 = body.xf.Q.MulTV(p1)
				p1 = p1.Add(body.LocalCenter())
			}
			input.P1 = body.xf.MulV(p1)
		}

		output, hit := f.RayCast(input, childIndex)
		if !hit {
			return
		}
		n := output.Normal
		p := input.P1.Scale(1.0 - output.Fraction).Add(input.P2.Scale(output.Fraction)).Add(n.Scale(linearSlop))
		v := p.Sub(ap).Scale(step.InvDt)
		ps.velocities[a] = v
		body.ApplyLinearImpulse(av.Sub(v).Scale(mass), p, true)
	})
}

// solveRigid moves every rigid group as a rigid body and sets its
// particle velocities to match.
func (ps *ParticleSystem) solveRigid(step TimeStep) {
	for g := ps.groupList; g != nil; g = g.next {
		if g.groupFlags&RigidParticleGroup == 0 {
			continue
		}
		g.updateStatistics()
		rotation := NewRot(step.Dt * g.angularVelocity)
		center := g.center
		xf := Transform{
			P: center.Add(g.linearVelocity.Scale(step.Dt)).Sub(rotation.MulV(center)),
			Q: rotation,
		}
		g.transform = xf.Mul(g.transform)

		// The velocity of a point x is invDt * (xf(x) - x).
		velocityTransform := Transform{
			P: xf.P.Scale(step.InvDt),
			Q: Rot{S: step.InvDt * xf.Q.S, C: step.InvDt * (xf.Q.C - 1.0)},
		}
		for i := g.firstIndex; i < g.lastIndex; i++ {
			ps.velocities[i] = velocityTransform.MulV(ps.positions[i])
		}
	}
}

func (ps *ParticleSystem) solveWall() {
	for i, flags := range ps.flags {
		if flags&WallParticle != 0 {
			ps.velocities[i] = Vec2{}
		}
	}
}
