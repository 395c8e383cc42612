package gekko

type editorOpKind int

const (
	opOpen editorOpKind = iota
	opSave
	opUndo
	opRedo
	opReset
	opPlay
	opPause
	opHotReload
	opDiff
)

// editorOp is one queued edit. For opDiff, diffs (if any) is applied and
// record (if any) is pushed to the undo chain.
type editorOp struct {
	kind   editorOpKind
	prefab PrefabUuid
	diffs  *TransactionDiffs
	record *TransactionDiffs
	policy SelectionPolicy
}

func (e *EditorState) enqueue(op editorOp) {
	e.ops = append(e.ops, op)
}

func (e *EditorState) EnqueueOpen(id PrefabUuid) { e.enqueue(editorOp{kind: opOpen, prefab: id}) }
func (e *EditorState) EnqueueSave()              { e.enqueue(editorOp{kind: opSave}) }
func (e *EditorState) EnqueueUndo()              { e.enqueue(editorOp{kind: opUndo}) }
func (e *EditorState) EnqueueRedo()              { e.enqueue(editorOp{kind: opRedo}) }
func (e *EditorState) EnqueueReset()             { e.enqueue(editorOp{kind: opReset}) }
func (e *EditorState) EnqueuePlay()              { e.enqueue(editorOp{kind: opPlay}) }
func (e *EditorState) EnqueuePause()             { e.enqueue(editorOp{kind: opPause}) }
func (e *EditorState) EnqueueHotReload()         { e.enqueue(editorOp{kind: opHotReload}) }

// EnqueueDiffs queues diffs for the next ProcessOperations. Diffs that change
// nothing are dropped. With commit set, the diffs also become an undo step.
func (e *EditorState) EnqueueDiffs(diffs *TransactionDiffs, commit bool, policy SelectionPolicy) {
	if diffs.IsEmpty() {
		return
	}
	op := editorOp{kind: opDiff, diffs: diffs, policy: policy}
	if commit {
		op.record = diffs
	}
	e.enqueue(op)
}

// PendingOperations reports how many operations wait for the next frame.
func (e *EditorState) PendingOperations() int {
	return len(e.ops)
}

// ProcessOperations drains the queue in FIFO order. It is the only place that
// respawns the live world during a frame, so handles read between two calls
// stay valid.
func (e *EditorState) ProcessOperations(cmd *Commands) {
	for len(e.ops) > 0 {
		op := e.ops[0]
		e.ops[0] = editorOp{}
		e.ops = e.ops[1:]
		e.process(cmd, op)
	}
	e.ops = nil
}

func (e *EditorState) process(cmd *Commands, op editorOp) {
	switch op.kind {
	case opOpen:
		// Open logs its own failures.
		_ = e.Open(cmd, op.prefab)
	case opSave:
		if err := e.Save(); err != nil {
			e.logger.Errorf("save: %v", err)
		}
	case opUndo:
		e.Undo(cmd)
	case opRedo:
		e.Redo(cmd)
	case opReset:
		e.Reset(cmd)
	case opPlay:
		e.setPlaying(cmd, true)
	case opPause:
		e.setPlaying(cmd, false)
	case opHotReload:
		if _, err := e.HotReloadIfChanged(cmd); err != nil {
			e.logger.Errorf("hot reload: %v", err)
		}
	case opDiff:
		if e.opened.Load() == nil {
			e.logger.Debugf("dropping diff: %v", ErrNoPrefabOpen)
			return
		}
		if !op.diffs.IsEmpty() {
			origin := "update"
			if op.record != nil {
				origin = "commit"
			}
			if err := e.applyDiff(cmd, op.diffs.Apply, op.policy, origin); err != nil {
				e.logger.Errorf("%v", err)
				return
			}
		} else if op.record != nil && op.policy == SelectTouched {
			e.restoreSelection(cmd.app.ecs, op.record.Apply.Touched())
		}
		if !op.record.IsEmpty() {
			e.undo.Push(op.record)
			e.metrics.observeUndo(e.undo)
		}
	}
}

// Undo reverts the step before the cursor. At the start of the chain it does
// nothing.
func (e *EditorState) Undo(cmd *Commands) {
	if e.opened.Load() == nil {
		return
	}
	diffs := e.undo.StepBack()
	if diffs == nil {
		return
	}
	if err := e.applyDiff(cmd, diffs.Revert, SelectTouched, "undo"); err != nil {
		e.logger.Errorf("%v", err)
	}
	e.metrics.observeUndo(e.undo)
}

// Redo re-applies the step at the cursor. At the end of the chain it does
// nothing.
func (e *EditorState) Redo(cmd *Commands) {
	if e.opened.Load() == nil {
		return
	}
	diffs := e.undo.StepForward()
	if diffs == nil {
		return
	}
	if err := e.applyDiff(cmd, diffs.Apply, SelectTouched, "redo"); err != nil {
		e.logger.Errorf("%v", err)
	}
	e.metrics.observeUndo(e.undo)
}

// EditorModule installs the editor as a resource and drains its queue at the
// start of every frame.
type EditorModule struct {
	Editor *EditorState
	// HotReload checks the opened prefab for external changes every frame.
	HotReload bool
}

func (m EditorModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(m.Editor)
	if m.HotReload {
		app.UseSystem(System(EditorHotReloadSystem).InStage(Prelude).RunAlways())
	}
	app.UseSystem(System(EditorOperationsSystem).InStage(Prelude).RunAlways())
}

func EditorOperationsSystem(cmd *Commands, editor *EditorState) {
	editor.ProcessOperations(cmd)
}

func EditorHotReloadSystem(editor *EditorState) {
	if editor.Opened() != nil {
		editor.EnqueueHotReload()
	}
}
