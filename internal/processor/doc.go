// Package processor converts raw records into self-contained ready packages.
//
// A sweep reads each JSON record under raw/{source}, normalizes its text,
// splits it into bounded chunks preferring sentence boundaries, embeds every
// chunk, writes the package to ready/, and retires the record to processed/.
// Malformed records move to errors/{source} and are counted, never silently
// dropped; audio records without a transcript are left for the transcription
// worker.
package processor
