package filetransfer

import log "github.com/sirupsen/logrus"

// Sender drives the CP side of a file transfer: it owns the source
// file and greedily fills as much of each outgoing packet as it can.
type Sender struct {
	ops Ops

	state     State
	fileID    int
	flags     uint32
	offset    int
	size      int
	length    int
	errors    int
	cancelReq bool
}

// NewSender wraps ops in a Sender ready to start transfers.
func NewSender(ops Ops) *Sender {
	return &Sender{ops: ops}
}

func (s *Sender) reset() {
	s.offset, s.size, s.length, s.errors = 0, 0, 0, 0
	s.cancelReq = false
}

// Start begins a new transfer of fileID, opening it through ops.
func (s *Sender) Start(fileID int, flags uint32) error {
	if s.ops == nil {
		return ErrOpsNotRegistered
	}
	if s.state == StateInProgress {
		if flags&FlagCancel != 0 {
			if fileID != s.fileID {
				return ErrInvalidCancel
			}
			s.cancelReq = true
			return nil
		}
		return ErrAlreadyRunning
	}
	if flags&FlagCancel != 0 {
		return ErrInvalidCancel
	}

	size, err := s.ops.Open(fileID, flags)
	if err != nil {
		return err
	}
	s.reset()
	s.flags = flags
	s.fileID = fileID
	s.size = size
	s.state = StateInProgress
	log.Infof("filetransfer: starting send of file %d, size %d", fileID, size)
	return nil
}

// Abort closes the underlying file and resets to idle, discarding
// any in-flight transfer.
func (s *Sender) Abort() {
	if s.state == StateInProgress {
		s.ops.Close()
		s.state = StateIdle
		s.reset()
	}
}

// TxState reports the transfer's public status, aborting it first if
// the retry budget has been exhausted or a cancel was requested.
func (s *Sender) TxState() TxState {
	if s.state != StateInProgress {
		return TxIdle
	}
	if s.errors > ErrorRetryMax || s.cancelReq {
		log.Errorf("filetransfer: aborting send of file %d after %d errors", s.fileID, s.errors)
		s.Abort()
		return TxError
	}
	return TxPending
}

// Chunk is one outgoing FILETRANSFER command body, ready for the
// codec layer to encode.
type Chunk struct {
	Type   byte
	Size   uint32
	Offset uint32
	Data   []byte
}

// BuildChunk reads the next slice of the file, sized to fill as much
// of an available packet (maxLen bytes of payload space) as possible.
func (s *Sender) BuildChunk(maxLen int) (Chunk, error) {
	if s.state != StateInProgress {
		return Chunk{}, ErrNotInProgress
	}
	avail := maxLen - HeaderOverhead - FrameOverhead
	if avail <= 0 {
		return Chunk{}, ErrShortChunk
	}

	data := make([]byte, avail)
	n, err := s.ops.Read(data, s.offset)
	if err != nil {
		s.errors++
		s.length = 0
		return Chunk{}, err
	}
	if n == 0 {
		log.Warn("filetransfer: read 0-length chunk, aborting transfer")
		s.Abort()
		return Chunk{}, ErrNotInProgress
	}
	s.length = n

	return Chunk{
		Type:   byte(s.fileID),
		Size:   uint32(s.size),
		Offset: uint32(s.offset),
		Data:   data[:n],
	}, nil
}

// DecodeStatus applies the PD's FTSTAT reply to the sender's offset
// bookkeeping, closing and marking the transfer done once offset
// reaches size.
func (s *Sender) DecodeStatus(ok bool) error {
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if ok {
		s.offset += s.length
		s.errors = 0
	} else {
		s.errors++
	}
	s.length = 0

	if s.offset == s.size {
		s.ops.Close()
		s.state = StateDone
		log.Info("filetransfer: send complete")
	}
	return nil
}

// Progress reports the current size/offset for a status query.
func (s *Sender) Progress() (size, offset int) {
	return s.size, s.offset
}

// Active reports whether a transfer is running or has just finished.
func (s *Sender) Active() bool {
	return s.state == StateInProgress || s.state == StateDone
}
