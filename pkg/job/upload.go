package job

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tessellab/simfarm/pkg/engine"
	"github.com/tessellab/simfarm/pkg/transfer"
)

// defaultUploadTimeout is how long a transfer may sit without an accepted
// chunk before the watchdog force-cancels it.
const defaultUploadTimeout = 30 * time.Second

// InitUpload opens a new transfer targeting fileName inside the job
// directory and returns its transfer id. Reserved names and names already
// targeted by an in-flight transfer are rejected.
func (j *Job) InitUpload(fileName string) (uuid.UUID, error) {
	if fileName == "" {
		return uuid.Nil, BadInput("file name must not be empty")
	}
	if fileName != filepath.Base(fileName) {
		return uuid.Nil, BadInput("file name must not contain path separators")
	}
	if engine.IsReservedFileName(fileName) {
		return uuid.Nil, BadInput("file name %s is reserved", fileName)
	}
	for _, t := range j.transfers {
		if t.FileName() == fileName {
			return uuid.Nil, BadInput("an upload for file %s is already in progress", fileName)
		}
	}

	t, err := transfer.Open(filepath.Join(j.dir, fileName), fileName)
	if err != nil {
		return uuid.Nil, Internal(err)
	}

	id := uuid.New()
	j.transfers[id] = t
	return id, nil
}

// UploadChunk appends one chunk to an open transfer. Chunk indices must
// arrive in strictly increasing order starting at 0.
func (j *Job) UploadChunk(transferID uuid.UUID, index uint32, data []byte) error {
	t, ok := j.transfers[transferID]
	if !ok {
		return BadInput("no such transfer")
	}

	if err := t.WriteChunk(index, data); err != nil {
		if errors.Is(err, transfer.ErrOutOfOrder) {
			return BadInput("%v", err)
		}
		return Internal(err)
	}
	return nil
}

// FinishUpload completes a transfer and records the destination file in the
// job's additional-file metadata.
func (j *Job) FinishUpload(transferID uuid.UUID) error {
	t, ok := j.transfers[transferID]
	if !ok {
		return BadInput("no such transfer")
	}

	if err := t.Finish(); err != nil {
		delete(j.transfers, transferID)
		return Internal(err)
	}

	j.additionalFiles[t.FileName()] = t.BytesWritten()
	delete(j.transfers, transferID)
	return nil
}

// CancelUpload aborts a transfer and deletes the partial file.
func (j *Job) CancelUpload(transferID uuid.UUID) error {
	t, ok := j.transfers[transferID]
	if !ok {
		return BadInput("no such transfer")
	}

	delete(j.transfers, transferID)
	if err := t.Cancel(); err != nil {
		return Internal(err)
	}
	return nil
}

// OpenTransfers returns the number of in-flight uploads.
func (j *Job) OpenTransfers() int {
	return len(j.transfers)
}

// TerminateHungUploads force-cancels every transfer that has not accepted a
// chunk within the upload timeout. Best effort.
func (j *Job) TerminateHungUploads() {
	j.terminateHungUploadsAt(time.Now())
}

func (j *Job) terminateHungUploadsAt(now time.Time) {
	for id, t := range j.transfers {
		if now.Sub(t.IdleSince()) <= j.uploadTimeout {
			continue
		}
		j.logger.Info("Terminating hung upload",
			zap.String("job", j.name),
			zap.String("transfer_id", id.String()),
			zap.String("file", t.FileName()))
		delete(j.transfers, id)
		if err := t.Cancel(); err != nil {
			j.logger.Warn("Failed to cancel hung upload",
				zap.String("transfer_id", id.String()),
				zap.Error(err))
		}
	}
}

// ListAdditionalFiles returns the completed uploads' metadata, sorted by
// file name.
func (j *Job) ListAdditionalFiles() []AdditionalFile {
	files := make([]AdditionalFile, 0, len(j.additionalFiles))
	for name, size := range j.additionalFiles {
		files = append(files, AdditionalFile{Name: name, Size: size})
	}
	sort.Slice(files, func(i, k int) bool { return files[i].Name < files[k].Name })
	return files
}

// DeleteAdditionalFile removes a completed upload from disk and from the
// job's metadata. A file still being uploaded cannot be deleted.
func (j *Job) DeleteAdditionalFile(name string) error {
	for _, t := range j.transfers {
		if t.FileName() == name {
			return BadInput("file %s has an upload in progress", name)
		}
	}
	if _, ok := j.additionalFiles[name]; !ok {
		return BadInput("no additional file named %s", name)
	}

	if err := os.Remove(filepath.Join(j.dir, name)); err != nil && !os.IsNotExist(err) {
		return Internal(err)
	}
	delete(j.additionalFiles, name)
	return nil
}
