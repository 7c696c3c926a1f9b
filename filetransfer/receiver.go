package filetransfer

import log "github.com/sirupsen/logrus"

// Receiver drives the PD side of a file transfer: it writes each
// incoming chunk to the destination file and reports progress back
// to the CP in each FTSTAT reply.
type Receiver struct {
	ops Ops

	state  State
	fileID int
	offset int
	size   int
	length int
	errors int
}

// NewReceiver wraps ops in a Receiver ready to accept transfers.
func NewReceiver(ops Ops) *Receiver {
	return &Receiver{ops: ops}
}

// HandleChunk accepts one incoming FILETRANSFER command body. A new
// file is opened automatically when a chunk arrives while idle or
// after a previous transfer completed.
func (r *Receiver) HandleChunk(fileID int, size, offset int, data []byte) error {
	if r.ops == nil {
		return ErrOpsNotRegistered
	}

	if r.state == StateIdle || r.state == StateDone {
		opened, err := r.ops.Open(fileID, 0)
		if err != nil {
			return err
		}
		r.offset, r.length, r.errors = 0, 0, 0
		r.fileID = fileID
		r.size = opened
		if size > 0 {
			r.size = size
		}
		r.state = StateInProgress
		log.Infof("filetransfer: receiving file %d, size %d", fileID, r.size)
	}

	if r.state != StateInProgress {
		return ErrNotInProgress
	}

	if err := r.ops.Write(data, offset); err != nil {
		r.errors++
		return err
	}
	r.length = len(data)
	return nil
}

// BuildStatus reports the outcome of the last HandleChunk as an
// FTSTAT reply, advancing the offset and closing the file on EOF.
func (r *Receiver) BuildStatus() (ok bool, control byte, delayMS uint16) {
	if r.length > 0 {
		r.offset += r.length
		r.errors = 0
		ok = true
	}
	r.length = 0

	if r.offset >= r.size && r.size > 0 {
		r.ops.Close()
		r.state = StateDone
		log.Info("filetransfer: receive complete")
	}
	return ok, 0, 0
}

// Progress reports the current size/offset for a status query.
func (r *Receiver) Progress() (size, offset int) {
	return r.size, r.offset
}
