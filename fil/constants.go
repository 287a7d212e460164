package fil

// Page header offsets shared by every file page.
const (
	PageSpaceOrChecksum    = 0
	PageOffset             = 4
	PagePrev               = 8
	PageNext               = 12
	PageLSN                = 16
	PageType               = 24
	PageFileFlushLSN       = 26
	PageArchLogNoOrSpaceID = 34
	PageData               = 38
)

// Space purposes.
const (
	SpaceTablespace uint32 = iota + 501
	SpaceTemporary
	SpaceImport
)

// SystemSpaceID is the id of the system tablespace.
const SystemSpaceID uint32 = 0
