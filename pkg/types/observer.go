package types

// Observer receives fire-and-forget notifications from the stream pipelines.
// Implementations must not block; they are invoked from worker goroutines.
type Observer interface {
	OnRotation(ev RotationEvent)
	OnCompression(res CompressionResult)
	OnSweep(res SweepResult)
	OnError(stream string, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnRotation(RotationEvent) {}
func (NopObserver) OnCompression(CompressionResult) {}
func (NopObserver) OnSweep(SweepResult) {}
func (NopObserver) OnError(string, error) {}

// Observers fans notifications out to every member.
type Observers []Observer

func (o Observers) OnRotation(ev RotationEvent) {
	for _, obs := range o {
		obs.OnRotation(ev)
	}
}

func (o Observers) OnCompression(res CompressionResult) {
	for _, obs := range o {
		obs.OnCompression(res)
	}
}

func (o Observers) OnSweep(res SweepResult) {
	for _, obs := range o {
		obs.OnSweep(res)
	}
}

func (o Observers) OnError(stream string, err error) {
	for _, obs := range o {
		obs.OnError(stream, err)
	}
}
