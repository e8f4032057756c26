package mem

// ProtectionLevel is how much of the process address space is kept out of swap.
type ProtectionLevel int

const (
	ProtectionNone    ProtectionLevel = iota // nothing locked
	ProtectionPartial                        // locking refused; keys rely on memguard alone
	ProtectionFull                           // mlockall succeeded
)

func (p ProtectionLevel) String() string {
	switch p {
	case ProtectionFull:
		return "full"
	case ProtectionPartial:
		return "partial"
	default:
		return "none"
	}
}

// Lock pins current and future pages of the process in RAM where the platform allows it.
func Lock() (ProtectionLevel, error) {
	return lockMemoryPlatform()
}

// Unlock releases the pages pinned by Lock.
func Unlock() error {
	return unlockMemoryPlatform()
}
