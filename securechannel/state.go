package securechannel

// RetryBackoffMS is OSDP_PD_SC_RETRY_SEC expressed in milliseconds:
// the back-off window that RetryAllowed measures from the last
// deactivation. The cp and pd handshake paths do not consult
// RetryAllowed, so a new handshake can start before the window ends.
const RetryBackoffMS = 600_000

// State bundles everything a PD-context needs to carry across a
// secure-channel lifetime: the derived keys, the MAC chain, the
// handshake nonces, and whether SC is currently active. cp and pd
// embed this directly rather than re-deriving its fields.
type State struct {
	Active bool

	SCBK [16]byte
	Keys SessionKeys
	MAC  MACState

	CPRandom     [8]byte
	PDRandom     [8]byte
	PDClientUID  [8]byte
	CPCryptogram [16]byte
	PDCryptogram [16]byte

	UsingDefaultKey bool

	// LastDeactivatedAtMs records when SC last dropped, for the
	// back-off window described by RetryBackoffMS. Zero means SC has
	// never been established or has never failed.
	LastDeactivatedAtMs int64
}

// Deactivate zeroes all key material and marks SC inactive, per the
// spec's failure rule: any MAC mismatch, decrypt-pad failure, or
// SC_COND NAK deactivates SC and clears keys.
func (s *State) Deactivate(nowMs int64) {
	*s = State{LastDeactivatedAtMs: nowMs}
}

// RetryAllowed reports whether enough time has passed since the last
// deactivation to attempt a fresh handshake.
func (s *State) RetryAllowed(nowMs int64) bool {
	if s.LastDeactivatedAtMs == 0 {
		return true
	}
	return nowMs-s.LastDeactivatedAtMs >= RetryBackoffMS
}
