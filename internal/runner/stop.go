package runner

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// StopFlag es el token de cancelación cooperativa de una ejecución.
// Solo transiciona de false a true, una vez.
type StopFlag struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewStopFlag crea un StopFlag sin activar.
func NewStopFlag() *StopFlag {
	return &StopFlag{done: make(chan struct{})}
}

// Stop activa el flag. Llamadas posteriores no tienen efecto.
func (f *StopFlag) Stop() {
	f.once.Do(func() {
		f.stopped.Store(true)
		close(f.done)
	})
}

// Stopped devuelve true si se pidió detener la ejecución.
func (f *StopFlag) Stopped() bool {
	return f.stopped.Load()
}

// Done se cierra cuando el flag se activa.
func (f *StopFlag) Done() <-chan struct{} {
	return f.done
}

// ListenInput lee líneas de r y activa el flag cuando el operador escribe "q".
// Termina al activarse el flag, al cerrarse r o al cancelarse ctx.
func ListenInput(ctx context.Context, r io.Reader, flag *StopFlag) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			case <-flag.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flag.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.EqualFold(strings.TrimSpace(line), "q") {
				slog.Info("stop requested by operator, finishing current market")
				flag.Stop()
				return
			}
		}
	}
}

// WatchSignals activa el flag con la primera señal y llama a hardCancel con
// la segunda, para forzar la salida sin esperar a las llamadas en curso.
func WatchSignals(ctx context.Context, sigs <-chan os.Signal, flag *StopFlag, hardCancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if !flag.Stopped() {
				slog.Info("signal received, finishing current market (repeat to force quit)", "signal", sig.String())
				flag.Stop()
				continue
			}
			slog.Warn("second signal received, aborting in-flight calls", "signal", sig.String())
			hardCancel()
			return
		}
	}
}
