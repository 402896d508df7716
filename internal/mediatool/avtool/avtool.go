/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * lyricexport
 * Copyright (C) 2026 lyricexport contributors
 *
 * This file is part of lyricexport.
 *
 * lyricexport is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * lyricexport is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with lyricexport.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package avtool is the astiav-backed production MediaTool. ExtractFrames
// generalizes the teacher's bgraScaler (video.go's toBGRA/ensure) from
// "scale the live decode for on-screen preview" to "scale and re-encode
// every decoded frame to a numbered JPEG". MuxH264 generalizes the
// teacher's startRecorder/closeRecorder MP4 muxing (AllocOutputFormatContext,
// NewStream, WriteHeader, WriteInterleavedFrame, WriteTrailer) from
// "stream-copy whatever the camera sends" to combining a standalone H.264
// elementary stream with optional audio into a faststart MP4.
package avtool

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/lyricexport/internal/mediatool"
	"github.com/e1z0/lyricexport/internal/model"
)

type Tool struct{}

func New() *Tool { return &Tool{} }

// fitDimensions returns the size the decoded frame is scaled to before
// being composited onto the req.Width x req.Height canvas: stretch
// scales straight to the canvas; cover/contain preserve source aspect,
// overflowing (cover) or falling short (contain) of the canvas so the
// caller can crop or letterbox it in afterward.
func fitDimensions(srcW, srcH, dstW, dstH int, mode model.FitMode) (contentW, contentH int) {
	if mode == model.FitStretch || mode == "" || srcW <= 0 || srcH <= 0 {
		return dstW, dstH
	}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)
	var w, h float64
	wider := srcAspect > dstAspect
	if mode == model.FitContain {
		wider = !wider
	}
	if wider {
		h = float64(dstH)
		w = h * srcAspect
	} else {
		w = float64(dstW)
		h = w / srcAspect
	}
	contentW, contentH = evenInt(int(w)), evenInt(int(h))
	if contentW < 2 {
		contentW = 2
	}
	if contentH < 2 {
		contentH = 2
	}
	return contentW, contentH
}

func evenInt(n int) int {
	if n%2 != 0 {
		n--
	}
	if n < 0 {
		n = 0
	}
	return n
}

// compositeJPEG decodes a contentW x contentH JPEG and centers it onto a
// dstW x dstH black canvas, cropping any overflow (cover) or leaving
// black bars around any shortfall (contain); draw.Draw clips the
// source/destination rectangles to their intersection either way.
func compositeJPEG(content []byte, dstW, dstH int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("avtool: decode content frame: %w", err)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	b := img.Bounds()
	offsetX := (dstW - b.Dx()) / 2
	offsetY := (dstH - b.Dy()) / 2
	draw.Draw(canvas, b.Add(image.Pt(offsetX, offsetY)), img, b.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("avtool: encode composited frame: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Tool) ExtractFrames(ctx context.Context, req mediatool.ExtractRequest, onProgress func(mediatool.Heartbeat)) (mediatool.ExtractResult, error) {
	fc := astiav.AllocInputFormatContext()
	if fc == nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: AllocInputFormatContext failed")
	}
	defer fc.Free()

	if err := fc.OpenInput(req.SourcePath, nil, nil); err != nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: OpenInput(%s): %w", req.SourcePath, err)
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: FindStreamInfo: %w", err)
	}

	var vs *astiav.Stream
	for _, s := range fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			vs = s
			break
		}
	}
	if vs == nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: %s has no video stream", req.SourcePath)
	}

	dec := astiav.FindDecoder(vs.CodecParameters().CodecID())
	if dec == nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: no decoder for codec %v", vs.CodecParameters().CodecID())
	}
	decCtx := astiav.AllocCodecContext(dec)
	if decCtx == nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: AllocCodecContext(decoder) failed")
	}
	defer decCtx.Free()
	if err := vs.CodecParameters().ToCodecContext(decCtx); err != nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: ToCodecContext: %w", err)
	}
	if err := decCtx.Open(dec, nil); err != nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: decoder Open: %w", err)
	}

	contentW, contentH := fitDimensions(decCtx.Width(), decCtx.Height(), req.Width, req.Height, req.FitMode)
	needsComposite := contentW != req.Width || contentH != req.Height

	jpegCodec := astiav.FindEncoder(astiav.CodecIDMjpeg)
	if jpegCodec == nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: mjpeg encoder not found")
	}
	jpegCtx := astiav.AllocCodecContext(jpegCodec)
	if jpegCtx == nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: AllocCodecContext(mjpeg) failed")
	}
	defer jpegCtx.Free()
	jpegCtx.SetWidth(contentW)
	jpegCtx.SetHeight(contentH)
	jpegCtx.SetPixelFormat(astiav.PixelFormatYuvj420P)
	jpegCtx.SetTimeBase(astiav.NewRational(req.FPSDen, req.FPSNum))
	if err := jpegCtx.Open(jpegCodec, nil); err != nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: mjpeg Open: %w", err)
	}

	scaler, err := astiav.CreateSoftwareScaleContext(
		decCtx.Width(), decCtx.Height(), decCtx.PixelFormat(),
		contentW, contentH, astiav.PixelFormatYuvj420P,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: CreateSoftwareScaleContext: %w", err)
	}
	defer scaler.Free()

	dst := astiav.AllocFrame()
	defer dst.Free()
	dst.SetWidth(contentW)
	dst.SetHeight(contentH)
	dst.SetPixelFormat(astiav.PixelFormatYuvj420P)
	if err := dst.AllocBuffer(1); err != nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: dst.AllocBuffer: %w", err)
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return mediatool.ExtractResult{}, fmt.Errorf("avtool: MkdirAll: %w", err)
	}

	// Trim to [StartMs, EndMs): seek near StartMs (SeekFlagBackward lands
	// on the keyframe at or before it) and drop decoded frames outside
	// the window by their presentation timestamp in the stream's own
	// time base.
	tb := vs.TimeBase()
	msToTs := func(ms int64) int64 {
		if tb.Num() == 0 {
			return 0
		}
		return ms * int64(tb.Den()) / (1000 * int64(tb.Num()))
	}
	startTs := msToTs(req.StartMs)
	var endTs int64 = -1
	if req.EndMs > req.StartMs {
		endTs = msToTs(req.EndMs)
	}
	if req.StartMs > 0 {
		if err := fc.SeekFrame(vs.Index(), startTs, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
			return mediatool.ExtractResult{}, fmt.Errorf("avtool: SeekFrame to %dms: %w", req.StartMs, err)
		}
		decCtx.FlushBuffers()
	}

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	srcFrame := astiav.AllocFrame()
	defer srcFrame.Free()
	outPkt := astiav.AllocPacket()
	defer outPkt.Free()

	frameCount := 0
readLoop:
	for {
		select {
		case <-ctx.Done():
			return mediatool.ExtractResult{}, ctx.Err()
		default:
		}

		if err := fc.ReadFrame(pkt); err != nil {
			break // EOF or read error: finish with what we decoded
		}
		if pkt.StreamIndex() != vs.Index() {
			pkt.Unref()
			continue
		}
		if err := decCtx.SendPacket(pkt); err != nil {
			pkt.Unref()
			continue
		}
		pkt.Unref()

		for {
			if err := decCtx.ReceiveFrame(srcFrame); err != nil {
				break
			}
			pts := srcFrame.Pts()
			if pts < startTs {
				srcFrame.Unref()
				continue
			}
			if endTs >= 0 && pts >= endTs {
				srcFrame.Unref()
				break readLoop
			}
			if err := scaler.ScaleFrame(srcFrame, dst); err != nil {
				srcFrame.Unref()
				continue
			}
			dst.SetPts(int64(frameCount))

			if err := jpegCtx.SendFrame(dst); err == nil {
				for {
					if err := jpegCtx.ReceivePacket(outPkt); err != nil {
						break
					}
					data, derr := outPkt.Data()
					if derr == nil {
						out := data
						if needsComposite {
							out, err = compositeJPEG(data, req.Width, req.Height)
							if err != nil {
								outPkt.Unref()
								srcFrame.Unref()
								return mediatool.ExtractResult{}, err
							}
						}
						name := filepath.Join(req.OutDir, fmt.Sprintf("bg_%06d.jpg", frameCount))
						if werr := os.WriteFile(name, out, 0o644); werr != nil {
							outPkt.Unref()
							srcFrame.Unref()
							return mediatool.ExtractResult{}, fmt.Errorf("avtool: WriteFile %s: %w", name, werr)
						}
					}
					outPkt.Unref()
				}
			}

			frameCount++
			srcFrame.Unref()
			if onProgress != nil {
				onProgress(mediatool.Heartbeat{ProcessedUnits: frameCount})
			}
		}
	}

	durationSeconds := 0.0
	if tb := vs.TimeBase(); tb.Den() > 0 && vs.Duration() > 0 {
		durationSeconds = float64(vs.Duration()) * float64(tb.Num()) / float64(tb.Den())
	}

	return mediatool.ExtractResult{FrameCount: frameCount, SourceDuration: durationSeconds}, nil
}

func (t *Tool) MuxH264(ctx context.Context, req mediatool.MuxRequest, onProgress func(mediatool.Heartbeat)) error {
	if req.StreamCopy {
		return t.muxStreamCopy(ctx, req, onProgress)
	}
	return t.muxReencode(ctx, req, onProgress)
}

// muxStreamCopy passes the elementary H.264 stream through untouched,
// used only when the encoder reported a strictly CFR PTS stream.
func (t *Tool) muxStreamCopy(ctx context.Context, req mediatool.MuxRequest, onProgress func(mediatool.Heartbeat)) error {
	tmpOut := req.OutputPath + ".tmp"
	defer os.Remove(tmpOut) // no-op once the rename below succeeds

	vIn := astiav.AllocInputFormatContext()
	if vIn == nil {
		return fmt.Errorf("avtool: AllocInputFormatContext(h264) failed")
	}
	defer vIn.Free()
	if err := vIn.OpenInput(req.H264Path, astiav.FindInputFormat("h264"), nil); err != nil {
		return fmt.Errorf("avtool: OpenInput(%s): %w", req.H264Path, err)
	}
	defer vIn.CloseInput()
	if err := vIn.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("avtool: FindStreamInfo(h264): %w", err)
	}
	vInStreams := vIn.Streams()
	if len(vInStreams) == 0 {
		return fmt.Errorf("avtool: %s has no elementary stream", req.H264Path)
	}
	vInStream := vInStreams[0]

	var aIn *astiav.InputFormatContext
	var aInStream *astiav.Stream
	if req.AudioPath != "" {
		aIn = astiav.AllocInputFormatContext()
		if aIn == nil {
			return fmt.Errorf("avtool: AllocInputFormatContext(audio) failed")
		}
		defer aIn.Free()
		if err := aIn.OpenInput(req.AudioPath, nil, nil); err != nil {
			return fmt.Errorf("avtool: OpenInput(%s): %w", req.AudioPath, err)
		}
		defer aIn.CloseInput()
		if err := aIn.FindStreamInfo(nil); err != nil {
			return fmt.Errorf("avtool: FindStreamInfo(audio): %w", err)
		}
		for _, s := range aIn.Streams() {
			if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
				aInStream = s
				break
			}
		}
	}

	oc, err := astiav.AllocOutputFormatContext(nil, "mp4", tmpOut)
	if err != nil || oc == nil {
		return fmt.Errorf("avtool: AllocOutputFormatContext: %w", err)
	}
	defer oc.Free()

	videoOut := oc.NewStream(nil)
	if videoOut == nil {
		return fmt.Errorf("avtool: NewStream(video) failed")
	}
	if err := vInStream.CodecParameters().Copy(videoOut.CodecParameters()); err != nil {
		return fmt.Errorf("avtool: copy video codec params: %w", err)
	}
	videoOut.SetTimeBase(astiav.NewRational(req.FPSDen, req.FPSNum))

	var audioOut *astiav.Stream
	if aInStream != nil {
		audioOut = oc.NewStream(nil)
		if audioOut == nil {
			return fmt.Errorf("avtool: NewStream(audio) failed")
		}
		if err := aInStream.CodecParameters().Copy(audioOut.CodecParameters()); err != nil {
			return fmt.Errorf("avtool: copy audio codec params: %w", err)
		}
		audioOut.SetTimeBase(aInStream.TimeBase())
	}

	ioFlags := astiav.NewIOContextFlags(astiav.IOContextFlagWrite)
	pb, err := astiav.OpenIOContext(tmpOut, ioFlags, nil, nil)
	if err != nil {
		return fmt.Errorf("avtool: OpenIOContext: %w", err)
	}
	oc.SetPb(pb)
	defer func() {
		_ = pb.Close()
		pb.Free()
	}()

	muxOpts := astiav.NewDictionary()
	defer muxOpts.Free()
	_ = muxOpts.Set("movflags", "faststart", 0)

	if err := oc.WriteHeader(muxOpts); err != nil {
		return fmt.Errorf("avtool: WriteHeader: %w", err)
	}

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	processed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := vIn.ReadFrame(pkt); err != nil {
			pkt.Unref()
			break
		}
		pkt.SetStreamIndex(videoOut.Index())
		if err := oc.WriteInterleavedFrame(pkt); err != nil {
			pkt.Unref()
			return fmt.Errorf("avtool: WriteInterleavedFrame(video): %w", err)
		}
		pkt.Unref()
		processed++
		if onProgress != nil {
			onProgress(mediatool.Heartbeat{ProcessedUnits: int(int64(processed) * 1000 * int64(req.FPSDen) / int64(req.FPSNum))})
		}
	}

	if aIn != nil && audioOut != nil {
		apkt := astiav.AllocPacket()
		defer apkt.Free()
		for {
			if err := aIn.ReadFrame(apkt); err != nil {
				apkt.Unref()
				break
			}
			if apkt.StreamIndex() != aInStream.Index() {
				apkt.Unref()
				continue
			}
			apkt.SetStreamIndex(audioOut.Index())
			if err := oc.WriteInterleavedFrame(apkt); err != nil {
				apkt.Unref()
				return fmt.Errorf("avtool: WriteInterleavedFrame(audio): %w", err)
			}
			apkt.Unref()
		}
	}

	if err := oc.WriteTrailer(); err != nil {
		return fmt.Errorf("avtool: WriteTrailer: %w", err)
	}

	if err := os.Rename(tmpOut, req.OutputPath); err != nil {
		return fmt.Errorf("avtool: rename %s -> %s: %w", tmpOut, req.OutputPath, err)
	}
	return nil
}

// muxReencode decodes the elementary H.264 stream and re-encodes it with
// libx264 at a CRF quality target (preset medium), used whenever the
// encoder step couldn't guarantee a strictly CFR PTS stream and a plain
// copy would carry that drift into the output.
func (t *Tool) muxReencode(ctx context.Context, req mediatool.MuxRequest, onProgress func(mediatool.Heartbeat)) error {
	tmpOut := req.OutputPath + ".tmp"
	defer os.Remove(tmpOut) // no-op once the rename below succeeds

	vIn := astiav.AllocInputFormatContext()
	if vIn == nil {
		return fmt.Errorf("avtool: AllocInputFormatContext(h264) failed")
	}
	defer vIn.Free()
	if err := vIn.OpenInput(req.H264Path, astiav.FindInputFormat("h264"), nil); err != nil {
		return fmt.Errorf("avtool: OpenInput(%s): %w", req.H264Path, err)
	}
	defer vIn.CloseInput()
	if err := vIn.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("avtool: FindStreamInfo(h264): %w", err)
	}
	vInStreams := vIn.Streams()
	if len(vInStreams) == 0 {
		return fmt.Errorf("avtool: %s has no elementary stream", req.H264Path)
	}
	vInStream := vInStreams[0]

	dec := astiav.FindDecoder(vInStream.CodecParameters().CodecID())
	if dec == nil {
		return fmt.Errorf("avtool: no decoder for codec %v", vInStream.CodecParameters().CodecID())
	}
	decCtx := astiav.AllocCodecContext(dec)
	if decCtx == nil {
		return fmt.Errorf("avtool: AllocCodecContext(decoder) failed")
	}
	defer decCtx.Free()
	if err := vInStream.CodecParameters().ToCodecContext(decCtx); err != nil {
		return fmt.Errorf("avtool: ToCodecContext: %w", err)
	}
	if err := decCtx.Open(dec, nil); err != nil {
		return fmt.Errorf("avtool: decoder Open: %w", err)
	}

	enc := astiav.FindEncoder(astiav.CodecIDH264)
	if enc == nil {
		return fmt.Errorf("avtool: h264 encoder not found")
	}
	encCtx := astiav.AllocCodecContext(enc)
	if encCtx == nil {
		return fmt.Errorf("avtool: AllocCodecContext(encoder) failed")
	}
	defer encCtx.Free()
	encCtx.SetWidth(decCtx.Width())
	encCtx.SetHeight(decCtx.Height())
	encCtx.SetPixelFormat(astiav.PixelFormatYuv420P)
	encCtx.SetTimeBase(astiav.NewRational(req.FPSDen, req.FPSNum))

	crf := req.CRF
	if crf <= 0 {
		crf = 18
	}
	encOpts := astiav.NewDictionary()
	defer encOpts.Free()
	_ = encOpts.Set("preset", "medium", 0)
	_ = encOpts.Set("crf", strconv.Itoa(crf), 0)
	if err := encCtx.Open(enc, encOpts); err != nil {
		return fmt.Errorf("avtool: encoder Open: %w", err)
	}

	var scaler *astiav.SoftwareScaleContext
	var scaled *astiav.Frame
	if decCtx.PixelFormat() != astiav.PixelFormatYuv420P {
		var err error
		scaler, err = astiav.CreateSoftwareScaleContext(
			decCtx.Width(), decCtx.Height(), decCtx.PixelFormat(),
			decCtx.Width(), decCtx.Height(), astiav.PixelFormatYuv420P,
			astiav.NewSoftwareScaleContextFlags(),
		)
		if err != nil {
			return fmt.Errorf("avtool: CreateSoftwareScaleContext: %w", err)
		}
		defer scaler.Free()
		scaled = astiav.AllocFrame()
		defer scaled.Free()
		scaled.SetWidth(decCtx.Width())
		scaled.SetHeight(decCtx.Height())
		scaled.SetPixelFormat(astiav.PixelFormatYuv420P)
		if err := scaled.AllocBuffer(1); err != nil {
			return fmt.Errorf("avtool: scaled.AllocBuffer: %w", err)
		}
	}

	var aIn *astiav.InputFormatContext
	var aInStream *astiav.Stream
	if req.AudioPath != "" {
		aIn = astiav.AllocInputFormatContext()
		if aIn == nil {
			return fmt.Errorf("avtool: AllocInputFormatContext(audio) failed")
		}
		defer aIn.Free()
		if err := aIn.OpenInput(req.AudioPath, nil, nil); err != nil {
			return fmt.Errorf("avtool: OpenInput(%s): %w", req.AudioPath, err)
		}
		defer aIn.CloseInput()
		if err := aIn.FindStreamInfo(nil); err != nil {
			return fmt.Errorf("avtool: FindStreamInfo(audio): %w", err)
		}
		for _, s := range aIn.Streams() {
			if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
				aInStream = s
				break
			}
		}
	}

	oc, err := astiav.AllocOutputFormatContext(nil, "mp4", tmpOut)
	if err != nil || oc == nil {
		return fmt.Errorf("avtool: AllocOutputFormatContext: %w", err)
	}
	defer oc.Free()

	videoOut := oc.NewStream(nil)
	if videoOut == nil {
		return fmt.Errorf("avtool: NewStream(video) failed")
	}
	if err := videoOut.CodecParameters().FromCodecContext(encCtx); err != nil {
		return fmt.Errorf("avtool: copy encoder params: %w", err)
	}
	videoOut.SetTimeBase(encCtx.TimeBase())

	var audioOut *astiav.Stream
	if aInStream != nil {
		audioOut = oc.NewStream(nil)
		if audioOut == nil {
			return fmt.Errorf("avtool: NewStream(audio) failed")
		}
		if err := aInStream.CodecParameters().Copy(audioOut.CodecParameters()); err != nil {
			return fmt.Errorf("avtool: copy audio codec params: %w", err)
		}
		audioOut.SetTimeBase(aInStream.TimeBase())
	}

	ioFlags := astiav.NewIOContextFlags(astiav.IOContextFlagWrite)
	pb, err := astiav.OpenIOContext(tmpOut, ioFlags, nil, nil)
	if err != nil {
		return fmt.Errorf("avtool: OpenIOContext: %w", err)
	}
	oc.SetPb(pb)
	defer func() {
		_ = pb.Close()
		pb.Free()
	}()

	muxOpts := astiav.NewDictionary()
	defer muxOpts.Free()
	_ = muxOpts.Set("movflags", "faststart", 0)

	if err := oc.WriteHeader(muxOpts); err != nil {
		return fmt.Errorf("avtool: WriteHeader: %w", err)
	}

	inPkt := astiav.AllocPacket()
	defer inPkt.Free()
	srcFrame := astiav.AllocFrame()
	defer srcFrame.Free()
	outPkt := astiav.AllocPacket()
	defer outPkt.Free()

	processed := 0
	encodeFrame := func(f *astiav.Frame) error {
		f.SetPts(int64(processed))
		if err := encCtx.SendFrame(f); err != nil {
			return fmt.Errorf("avtool: encoder SendFrame: %w", err)
		}
		for {
			if err := encCtx.ReceivePacket(outPkt); err != nil {
				break
			}
			outPkt.SetStreamIndex(videoOut.Index())
			if err := oc.WriteInterleavedFrame(outPkt); err != nil {
				outPkt.Unref()
				return fmt.Errorf("avtool: WriteInterleavedFrame(video): %w", err)
			}
			outPkt.Unref()
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := vIn.ReadFrame(inPkt); err != nil {
			inPkt.Unref()
			break
		}
		if inPkt.StreamIndex() != vInStream.Index() {
			inPkt.Unref()
			continue
		}
		if err := decCtx.SendPacket(inPkt); err != nil {
			inPkt.Unref()
			continue
		}
		inPkt.Unref()

		for {
			if err := decCtx.ReceiveFrame(srcFrame); err != nil {
				break
			}
			frameToEncode := srcFrame
			if scaler != nil {
				if err := scaler.ScaleFrame(srcFrame, scaled); err != nil {
					srcFrame.Unref()
					continue
				}
				frameToEncode = scaled
			}
			if err := encodeFrame(frameToEncode); err != nil {
				srcFrame.Unref()
				return err
			}
			processed++
			if onProgress != nil {
				onProgress(mediatool.Heartbeat{ProcessedUnits: int(int64(processed) * 1000 * int64(req.FPSDen) / int64(req.FPSNum))})
			}
			srcFrame.Unref()
		}
	}

	// flush the encoder's reordering buffer
	if err := encCtx.SendFrame(nil); err != nil {
		return fmt.Errorf("avtool: encoder flush SendFrame: %w", err)
	}
	for {
		if err := encCtx.ReceivePacket(outPkt); err != nil {
			break
		}
		outPkt.SetStreamIndex(videoOut.Index())
		if err := oc.WriteInterleavedFrame(outPkt); err != nil {
			outPkt.Unref()
			return fmt.Errorf("avtool: WriteInterleavedFrame(video): %w", err)
		}
		outPkt.Unref()
	}

	if aIn != nil && audioOut != nil {
		apkt := astiav.AllocPacket()
		defer apkt.Free()
		for {
			if err := aIn.ReadFrame(apkt); err != nil {
				apkt.Unref()
				break
			}
			if apkt.StreamIndex() != aInStream.Index() {
				apkt.Unref()
				continue
			}
			apkt.SetStreamIndex(audioOut.Index())
			if err := oc.WriteInterleavedFrame(apkt); err != nil {
				apkt.Unref()
				return fmt.Errorf("avtool: WriteInterleavedFrame(audio): %w", err)
			}
			apkt.Unref()
		}
	}

	if err := oc.WriteTrailer(); err != nil {
		return fmt.Errorf("avtool: WriteTrailer: %w", err)
	}

	if err := os.Rename(tmpOut, req.OutputPath); err != nil {
		return fmt.Errorf("avtool: rename %s -> %s: %w", tmpOut, req.OutputPath, err)
	}
	return nil
}
