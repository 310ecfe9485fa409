package trace

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/quillml/quill/internal/logger"
)

const flightTimeout = 30 * time.Second

// descriptorPath identifies step-trace uploads on the collector.
var descriptorPath = []string{"quill", "steps"}

// ExportFlight ships a snapshotted trace record to an Arrow Flight
// collector via DoPut. The record is not released.
func ExportFlight(ctx context.Context, addr string, rec arrow.Record) error {
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, flightTimeout)
	defer cancel()

	stream, err := client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	wr := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	wr.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: descriptorPath,
	})
	if err := wr.Write(rec); err != nil {
		wr.Close()
		return fmt.Errorf("failed to write trace record: %w", err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("failed to close record writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close DoPut stream: %w", err)
	}

	// Drain acks so the server finishes the upload before we hang up.
	for {
		if _, err := stream.Recv(); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed reading DoPut response: %w", err)
		}
	}

	logger.Log.Info("trace exported", "addr", addr, "rows", rec.NumRows())
	return nil
}
