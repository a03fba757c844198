package model

import "context"

type contextKey string

const (
	ContextJobID       contextKey = "jobId"
	ContextPrinterName contextKey = "printerName"
)

// WithJobID tags ctx with the print job id used in log lines.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextJobID, id)
}

func JobIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ContextJobID).(string)
	return id
}

func WithPrinterName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextPrinterName, name)
}

func PrinterNameFrom(ctx context.Context) string {
	name, _ := ctx.Value(ContextPrinterName).(string)
	return name
}
