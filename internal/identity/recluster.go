package identity

import (
	"context"
	"fmt"
	"sort"

	"github.com/kozaktomas/face-sorter/internal/database"
)

// ReclusterReport summarizes a committed batch re-cluster.
type ReclusterReport struct {
	FacesProcessed  int
	PersonsCreated  int
	PersonsMerged   int
	ManualPreserved int
}

// ClusterPreview is the dry-run output of the batch clusterer. It reports
// what DBSCAN finds without touching any person.
type ClusterPreview struct {
	ClusterSizes   []int
	ClusteredFaces int
	Outliers       int
	AnchoredFaces  int
	FreeFaces      int
}

// Re-cluster progress stages in the order they run.
const (
	StageSnapshot = "snapshot"
	StageCluster  = "cluster"
	StagePlan     = "plan"
	StageCommit   = "commit"
)

// ProgressFunc receives coarse progress while a re-cluster runs.
type ProgressFunc func(stage string, done, total int)

// ReclusterOption configures a single Recluster call.
type ReclusterOption func(*reclusterRun)

// WithProgress streams stage progress to fn.
func WithProgress(fn ProgressFunc) ReclusterOption {
	return func(r *reclusterRun) { r.progress = fn }
}

type reclusterRun struct {
	progress ProgressFunc
}

func (r *reclusterRun) report(stage string, done, total int) {
	if r.progress != nil {
		r.progress(stage, done, total)
	}
}

// Recluster rebuilds the person partition of all automatic faces with
// DBSCAN while manual faces pin their persons in place. The outcome is
// committed as one store transaction; on error nothing changes. A second
// re-cluster arriving while one runs fails fast with ConflictError.
func (e *Engine) Recluster(ctx context.Context, opts ...ReclusterOption) (*ReclusterReport, error) {
	run := &reclusterRun{}
	for _, opt := range opts {
		opt(run)
	}

	if !e.clusterMu.TryLock() {
		return nil, &ConflictError{Op: "recluster"}
	}
	defer e.clusterMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run.report(StageSnapshot, 0, 2)
	faces, err := e.store.ListFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot faces: %w", err)
	}
	run.report(StageSnapshot, 1, 2)
	persons, err := e.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot persons: %w", err)
	}
	run.report(StageSnapshot, 2, 2)

	plan, report := e.buildReclusterPlan(faces, persons, run)

	run.report(StageCommit, 0, 1)
	if err := e.store.ApplyRecluster(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to commit re-cluster: %w", err)
	}
	run.report(StageCommit, 1, 1)

	log.Infof("faces: re-cluster processed %d faces, created %d persons, merged %d, preserved %d manual",
		report.FacesProcessed, report.PersonsCreated, report.PersonsMerged, report.ManualPreserved)
	return report, nil
}

// PreviewClusters runs DBSCAN over the automatic faces and reports the
// resulting cluster shape without writing anything.
func (e *Engine) PreviewClusters(ctx context.Context) (*ClusterPreview, error) {
	faces, err := e.store.ListFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list faces: %w", err)
	}

	var free [][]float32
	anchored := 0
	for i := range faces {
		if faces[i].Origin.IsManual() {
			anchored++
			continue
		}
		free = append(free, faces[i].Embedding)
	}

	clusters, noise := dbscan(free, e.policy.Eps, e.policy.MinSamples, e.dist)

	preview := &ClusterPreview{
		Outliers:      len(noise),
		AnchoredFaces: anchored,
		FreeFaces:     len(free),
	}
	for _, cluster := range clusters {
		preview.ClusterSizes = append(preview.ClusterSizes, len(cluster))
		preview.ClusteredFaces += len(cluster)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(preview.ClusterSizes)))

	return preview, nil
}

// reclusterPlanner accumulates the plan while clusters are placed.
type reclusterPlanner struct {
	engine          *Engine
	faces           []database.Face
	persons         []database.Person
	personByID      map[int64]database.Person
	anchorsByPerson map[int64][]int
	freeIdx         []int

	plannedCount map[int64]int // faces per existing person after all moves
	claimed      map[int64]bool
	manualMoved  int

	plan   *database.ReclusterPlan
	report *ReclusterReport
}

// buildReclusterPlan derives the complete outcome of a re-cluster from a
// consistent snapshot. Pure computation, no store access.
func (e *Engine) buildReclusterPlan(faces []database.Face, persons []database.Person, run *reclusterRun) (*database.ReclusterPlan, *ReclusterReport) {
	p := &reclusterPlanner{
		engine:          e,
		faces:           faces,
		persons:         persons,
		personByID:      make(map[int64]database.Person, len(persons)),
		anchorsByPerson: make(map[int64][]int),
		plannedCount:    make(map[int64]int, len(persons)),
		claimed:         make(map[int64]bool),
		plan:            &database.ReclusterPlan{},
		report:          &ReclusterReport{FacesProcessed: len(faces)},
	}

	for _, person := range persons {
		p.personByID[person.ID] = person
		p.plannedCount[person.ID] = 0
	}

	var anchoredIdx []int
	totalManual := 0
	for i := range faces {
		p.plannedCount[faces[i].PersonID]++
		if faces[i].Origin.IsManual() {
			anchoredIdx = append(anchoredIdx, i)
			p.anchorsByPerson[faces[i].PersonID] = append(p.anchorsByPerson[faces[i].PersonID], i)
			totalManual++
			continue
		}
		p.freeIdx = append(p.freeIdx, i)
	}

	run.report(StageCluster, 0, len(p.freeIdx))
	freeEmbeddings := make([][]float32, len(p.freeIdx))
	for i, idx := range p.freeIdx {
		freeEmbeddings[i] = faces[idx].Embedding
	}
	clusters, noise := dbscan(freeEmbeddings, e.policy.Eps, e.policy.MinSamples, e.dist)
	// Outliers continue as singleton clusters so they can still join a
	// nearby anchor or become their own person.
	for _, n := range noise {
		clusters = append(clusters, []int{n})
	}
	run.report(StageCluster, len(p.freeIdx), len(p.freeIdx))

	for ci, cluster := range clusters {
		run.report(StagePlan, ci, len(clusters))
		p.placeCluster(cluster, anchoredIdx)
	}
	run.report(StagePlan, len(clusters), len(clusters))

	// Persons left without any planned face disappear. This sweeps both
	// superseded automatic persons and merge-emptied ones.
	for _, person := range persons {
		if p.plannedCount[person.ID] == 0 {
			p.plan.DeletePersonIDs = append(p.plan.DeletePersonIDs, person.ID)
		}
	}

	p.report.PersonsCreated = len(p.plan.NewPersons)
	p.report.ManualPreserved = totalManual - p.manualMoved
	return p.plan, p.report
}

// moveTo plans a single face move. Target is either an existing person
// (newIdx < 0) or an entry of plan.NewPersons.
func (p *reclusterPlanner) moveTo(faceIdx int, personID int64, newIdx int) {
	f := &p.faces[faceIdx]
	if newIdx < 0 && f.PersonID == personID {
		return // already in place
	}

	p.plan.Moves = append(p.plan.Moves, database.FaceMove{
		FaceID:       f.ID,
		PersonID:     personID,
		NewPersonIdx: newIdx,
		Origin:       f.Origin,
	})
	p.plannedCount[f.PersonID]--
	if newIdx < 0 {
		p.plannedCount[personID]++
	}
	if f.Origin.IsManual() {
		p.manualMoved++
	}
}

// placeCluster routes one derived cluster: to a contacted anchor person,
// through merge resolution when several persons' anchors are in reach, or
// to an automatic person.
func (p *reclusterPlanner) placeCluster(cluster []int, anchoredIdx []int) {
	// Anchored faces within eps of any member pull the cluster toward
	// their person.
	contacts := make(map[int64][]int)
	for _, a := range anchoredIdx {
		for _, m := range cluster {
			if p.engine.dist(p.faces[a].Embedding, p.faces[p.freeIdx[m]].Embedding) <= p.engine.policy.Eps {
				pid := p.faces[a].PersonID
				contacts[pid] = append(contacts[pid], a)
				break
			}
		}
	}

	switch len(contacts) {
	case 0:
		p.placeUnanchored(cluster)
	case 1:
		for pid := range contacts {
			for _, m := range cluster {
				p.moveTo(p.freeIdx[m], pid, -1)
			}
		}
	default:
		p.mergeDisputed(cluster, contacts)
	}
}

// mergeDisputed collapses a cluster that reaches anchors of two or more
// persons into a single surviving person. The losers' contacted anchored
// faces follow the cluster, keeping their manual origin; losers keep any
// faces outside the dispute.
func (p *reclusterPlanner) mergeDisputed(cluster []int, contacts map[int64][]int) {
	candidates := make([]MergeCandidate, 0, len(contacts))
	for pid, anchorFaces := range contacts {
		candidates = append(candidates, MergeCandidate{
			Person:        p.personByID[pid],
			AnchoredFaces: len(anchorFaces),
		})
	}
	survivor := p.engine.survivor(candidates)

	for _, m := range cluster {
		p.moveTo(p.freeIdx[m], survivor.ID, -1)
	}
	for pid, anchorFaces := range contacts {
		if pid == survivor.ID {
			continue
		}
		for _, a := range anchorFaces {
			p.moveTo(a, survivor.ID, -1)
		}
		p.report.PersonsMerged++
	}

	log.Debugf("faces: cluster of %d resolved a %d-person dispute, person %d survives",
		len(cluster), len(contacts), survivor.ID)
}

// placeUnanchored keeps a cluster with its previous automatic person when
// that person still fits, otherwise the cluster becomes a new person.
func (p *reclusterPlanner) placeUnanchored(cluster []int) {
	votes := make(map[int64]int)
	for _, m := range cluster {
		votes[p.faces[p.freeIdx[m]].PersonID]++
	}

	var ownerID int64
	bestVotes := -1
	for pid, v := range votes {
		if v > bestVotes || (v == bestVotes && pid < ownerID) {
			ownerID = pid
			bestVotes = v
		}
	}

	// Reuse keeps ids and names stable across runs, which also makes a
	// repeated re-cluster a fixed point.
	_, exists := p.personByID[ownerID]
	if exists && len(p.anchorsByPerson[ownerID]) == 0 && !p.claimed[ownerID] {
		p.claimed[ownerID] = true
		for _, m := range cluster {
			p.moveTo(p.freeIdx[m], ownerID, -1)
		}
		return
	}

	newIdx := len(p.plan.NewPersons)
	name := fmt.Sprintf("Person %d", len(p.persons)+newIdx+1)
	p.plan.NewPersons = append(p.plan.NewPersons, database.Person{Name: name})
	for _, m := range cluster {
		p.moveTo(p.freeIdx[m], 0, newIdx)
	}
}
