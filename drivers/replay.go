package drivers

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"time"

	"cuview/config"
	"cuview/ssm"
)

// Replayer feeds identifications from a capture file as if they came off the wire.
type Replayer struct {
	*config.ReplayFlags
	identifier *Identifier
	passes     int
}

const minReplayLoopDelay = 100 * time.Millisecond

func NewReplayer(replayFlags *config.ReplayFlags, identifier *Identifier) *Replayer {
	return &Replayer{
		replayFlags,
		identifier,
	}
}

func (r *Replayer) Init() error {
	_, err := os.Stat(r.Path)
	return err
}

func (r *Replayer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.playOnce(ctx); err != nil {
			return err
		}
		if !r.Loop {
			break
		}

		// pause between passes like between live identifications
		timer := time.NewTimer(max(r.identifier.interval, minReplayLoopDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (r *Replayer) Close() error {
	return nil
}

func (r *Replayer) playOnce(ctx context.Context) error {
	file, err := os.Open(r.Path)
	if err != nil {
		return err
	}
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			log.Printf("couldn't close file: %s", err)
		}
	}(file)

	r.passes++
	bufferReader := bufio.NewReader(file)

	var (
		first  = true
		prevMS int64
	)

	frameIndex := 0
	for {
		frame, err := readCaptureFrame(bufferReader)
		if err != nil {
			if err == io.EOF {
				log.Println("end of replay")
				return nil
			}
			if errors.Is(err, badCrcErr) {
				log.Printf("skipping frame %d: %v", frameIndex, err)
				frameIndex++
				continue
			}
			return err
		}

		if frameIndex < r.SkipFrames {
			frameIndex++
			continue
		}
		frameIndex++

		if first {
			first = false
			prevMS = int64(frame.millis)
		}

		if r.Speed > 0 {
			delta := time.Duration(int64(frame.millis) - prevMS)
			if delta > 0 {
				timer := time.NewTimer(time.Duration(float64(delta) * float64(time.Millisecond) / r.Speed))
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
			prevMS = int64(frame.millis)
		}

		if frame.tag != ssm.CmdGetCUData {
			continue
		}
		data, err := ssm.ParseCUData(frame.data)
		if err != nil {
			log.Printf("skipping frame %d: %v", frameIndex-1, err)
			continue
		}
		r.identifier.Publish(data)
	}
}
