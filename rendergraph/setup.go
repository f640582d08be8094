package rendergraph

// PassBuilder is the Setup-phase view of the builder for one pass.
type PassBuilder struct {
	b  *Builder
	pr *passRecord
}

// Pass returns the name of the pass being set up.
func (pb *PassBuilder) Pass() string { return pb.pr.name }

// View returns the per-view parameters of the build.
func (pb *PassBuilder) View() View { return pb.b.view }

// WriteTexture declares a texture written by this pass.
func (pb *PassBuilder) WriteTexture(name string, desc ResourceDescriptor) (ResourceHandle, error) {
	return pb.b.declareWrite(name, desc, KindTexture2D, pb.pr)
}

// WriteBuffer declares a buffer written by this pass.
func (pb *PassBuilder) WriteBuffer(name string, desc ResourceDescriptor) (ResourceHandle, error) {
	return pb.b.declareWrite(name, desc, KindBuffer, pb.pr)
}

// ReadTexture declares a texture read by this pass.
func (pb *PassBuilder) ReadTexture(name string) (ResourceHandle, error) {
	return pb.b.declareRead(name, KindTexture2D, pb.pr)
}

// ReadBuffer declares a buffer read by this pass.
func (pb *PassBuilder) ReadBuffer(name string) (ResourceHandle, error) {
	return pb.b.declareRead(name, KindBuffer, pb.pr)
}

// MarkPersistent keeps a resource this pass declared alive across builds.
func (pb *PassBuilder) MarkPersistent(name string) error {
	return pb.b.MarkPersistent(name)
}
